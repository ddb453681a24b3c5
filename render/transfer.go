package render

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/sync/errgroup"
)

// FindMemoryType scans the adapter's memory types in index order and
// returns the first whose bit is set in typeFilter and whose property
// flags are a superset of required. No qualifying type is fatal to the
// allocation that asked.
func FindMemoryType(memoryProperties core1_0.PhysicalDeviceMemoryProperties, typeFilter uint32, required core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range memoryProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeFilter&typeBit) != 0 && (memoryType.PropertyFlags&required) == required {
			return i, nil
		}
	}

	return 0, errors.Newf("no memory type matches filter %#x with properties %s", typeFilter, required)
}

// UploadJob names one immutable payload and the usage its destination
// buffer is created with.
type UploadJob struct {
	Data  any
	Usage core1_0.BufferUsageFlags
}

// Uploader moves immutable data into device-local memory through a
// host-visible staging buffer. Every upload blocks until the graphics
// queue is fully idle before the staging resources are freed, so uploads
// serialize completely with the frame loop; they belong in startup, never
// in steady state.
type Uploader struct {
	device Device
	sink   DiagnosticSink
}

// NewUploader returns an uploader over device. A nil sink discards
// diagnostics.
func NewUploader(device Device, sink DiagnosticSink) *Uploader {
	if sink == nil {
		sink = nopSink{}
	}
	return &Uploader{device: device, sink: sink}
}

// Upload copies data into a new device-local buffer created with the given
// usage plus transfer-destination. data is laid out with encoding/binary
// rules, so it must be a fixed-size value or a slice of one. The returned
// buffer is owned by the caller.
func (u *Uploader) Upload(data any, usage core1_0.BufferUsageFlags) (DeviceBuffer, error) {
	job := uuid.NewString()

	staging, dst, err := u.stage(job, data, usage)
	if staging.Size > 0 {
		defer u.device.DestroyBuffer(staging)
	}
	if err != nil {
		return DeviceBuffer{}, err
	}

	commandBuffer, err := u.beginOneShot()
	if err != nil {
		u.device.DestroyBuffer(dst)
		return DeviceBuffer{}, err
	}

	if err := u.device.CmdCopyBuffer(commandBuffer, staging, dst, staging.Size); err != nil {
		u.device.FreeCommandBuffers(commandBuffer)
		u.device.DestroyBuffer(dst)
		return DeviceBuffer{}, errors.Wrap(err, "record staging copy")
	}

	if err := u.endOneShot(commandBuffer); err != nil {
		u.device.DestroyBuffer(dst)
		return DeviceBuffer{}, err
	}

	u.sink.Diagnostic(SeverityInfo, fmt.Sprintf("transfer job %s: uploaded %d bytes", job, staging.Size))
	return dst, nil
}

// UploadBatch uploads several payloads with one submission. Staging
// population runs concurrently, then all copies are recorded into a single
// one-shot command buffer with a single queue-idle wait. The blocking
// contract is the same as Upload's; only the per-job overhead is batched
// away. Results are returned in job order.
func (u *Uploader) UploadBatch(jobs []UploadJob) ([]DeviceBuffer, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	batch := uuid.NewString()
	stagings := make([]DeviceBuffer, len(jobs))
	results := make([]DeviceBuffer, len(jobs))

	destroyAll := func(buffers []DeviceBuffer) {
		for _, buffer := range buffers {
			if buffer.Size > 0 {
				u.device.DestroyBuffer(buffer)
			}
		}
	}
	defer destroyAll(stagings)

	var group errgroup.Group
	for i := range jobs {
		i := i
		size := binary.Size(jobs[i].Data)
		if size <= 0 {
			destroyAll(results)
			return nil, errors.Newf("upload batch %s: job %d has no binary size", batch, i)
		}

		staging, err := u.device.CreateBuffer(size,
			core1_0.BufferUsageTransferSrc,
			core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		if err != nil {
			destroyAll(results)
			return nil, errors.Wrapf(err, "upload batch %s: create staging buffer for job %d", batch, i)
		}
		stagings[i] = staging

		dst, err := u.device.CreateBuffer(size,
			jobs[i].Usage|core1_0.BufferUsageTransferDst,
			core1_0.MemoryPropertyDeviceLocal)
		if err != nil {
			destroyAll(results)
			return nil, errors.Wrapf(err, "upload batch %s: create destination buffer for job %d", batch, i)
		}
		results[i] = dst

		group.Go(func() error {
			return u.device.WriteBuffer(stagings[i], 0, jobs[i].Data)
		})
	}

	if err := group.Wait(); err != nil {
		destroyAll(results)
		return nil, errors.Wrapf(err, "upload batch %s: populate staging memory", batch)
	}

	commandBuffer, err := u.beginOneShot()
	if err != nil {
		destroyAll(results)
		return nil, err
	}

	for i := range jobs {
		if err := u.device.CmdCopyBuffer(commandBuffer, stagings[i], results[i], stagings[i].Size); err != nil {
			u.device.FreeCommandBuffers(commandBuffer)
			destroyAll(results)
			return nil, errors.Wrapf(err, "upload batch %s: record copy for job %d", batch, i)
		}
	}

	if err := u.endOneShot(commandBuffer); err != nil {
		destroyAll(results)
		return nil, err
	}

	u.sink.Diagnostic(SeverityInfo, fmt.Sprintf("transfer batch %s: uploaded %d buffers", batch, len(jobs)))
	return results, nil
}

// Download reads a device-local buffer back through a staging copy. Debug
// aid only; the buffer must have been created with transfer-source usage.
func (u *Uploader) Download(buffer DeviceBuffer) ([]byte, error) {
	staging, err := u.device.CreateBuffer(buffer.Size,
		core1_0.BufferUsageTransferDst,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, errors.Wrap(err, "create readback staging buffer")
	}
	defer u.device.DestroyBuffer(staging)

	commandBuffer, err := u.beginOneShot()
	if err != nil {
		return nil, err
	}

	if err := u.device.CmdCopyBuffer(commandBuffer, buffer, staging, buffer.Size); err != nil {
		u.device.FreeCommandBuffers(commandBuffer)
		return nil, errors.Wrap(err, "record readback copy")
	}

	if err := u.endOneShot(commandBuffer); err != nil {
		return nil, err
	}

	return u.device.ReadBuffer(staging, 0, staging.Size)
}

// stage allocates and fills the staging buffer and allocates the
// destination for one upload.
func (u *Uploader) stage(job string, data any, usage core1_0.BufferUsageFlags) (staging, dst DeviceBuffer, err error) {
	size := binary.Size(data)
	if size <= 0 {
		return DeviceBuffer{}, DeviceBuffer{}, errors.Newf("transfer job %s: payload has no binary size", job)
	}

	staging, err = u.device.CreateBuffer(size,
		core1_0.BufferUsageTransferSrc,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return DeviceBuffer{}, DeviceBuffer{}, errors.Wrapf(err, "transfer job %s: create staging buffer", job)
	}

	if err = u.device.WriteBuffer(staging, 0, data); err != nil {
		return staging, DeviceBuffer{}, errors.Wrapf(err, "transfer job %s: populate staging memory", job)
	}

	dst, err = u.device.CreateBuffer(size,
		usage|core1_0.BufferUsageTransferDst,
		core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return staging, DeviceBuffer{}, errors.Wrapf(err, "transfer job %s: create destination buffer", job)
	}

	return staging, dst, nil
}

func (u *Uploader) beginOneShot() (core1_0.CommandBuffer, error) {
	buffers, err := u.device.AllocateCommandBuffers(1)
	if err != nil {
		return core1_0.CommandBuffer{}, errors.Wrap(err, "allocate one-shot command buffer")
	}

	if err := u.device.BeginOneTimeCommandBuffer(buffers[0]); err != nil {
		u.device.FreeCommandBuffers(buffers[0])
		return core1_0.CommandBuffer{}, errors.Wrap(err, "begin one-shot command buffer")
	}

	return buffers[0], nil
}

// endOneShot submits the one-shot buffer and blocks until the graphics
// queue is fully idle, then frees it. The idle wait is what makes freeing
// the staging buffer safe.
func (u *Uploader) endOneShot(buffer core1_0.CommandBuffer) error {
	defer u.device.FreeCommandBuffers(buffer)

	if err := u.device.EndCommandBuffer(buffer); err != nil {
		return errors.Wrap(err, "end one-shot command buffer")
	}
	if err := u.device.Submit(buffer); err != nil {
		return errors.Wrap(err, "submit one-shot command buffer")
	}
	if err := u.device.WaitQueueIdle(); err != nil {
		return errors.Wrap(err, "wait for queue idle after transfer")
	}

	return nil
}
