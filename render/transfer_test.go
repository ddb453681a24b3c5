package render

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestFindMemoryType(t *testing.T) {
	props := core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
		},
	}

	// First match in index order wins.
	index, err := FindMemoryType(props, 0b111, core1_0.MemoryPropertyDeviceLocal)
	require.NoError(t, err)
	require.Equal(t, 0, index)

	// The type filter excludes otherwise-qualifying indices.
	index, err = FindMemoryType(props, 0b110, core1_0.MemoryPropertyDeviceLocal)
	require.NoError(t, err)
	require.Equal(t, 1, index)

	// Required flags must all be present, not just some.
	index, err = FindMemoryType(props, 0b111, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	require.NoError(t, err)
	require.Equal(t, 2, index)

	_, err = FindMemoryType(props, 0b001, core1_0.MemoryPropertyHostVisible)
	require.Error(t, err)
}

func encodeForDevice(t *testing.T, data any) []byte {
	t.Helper()

	encoded := &bytes.Buffer{}
	require.NoError(t, binary.Write(encoded, common.ByteOrder, data))
	return encoded.Bytes()
}

func TestUploadRoundTrip(t *testing.T) {
	device := newFakeDevice()
	uploader := NewUploader(device, nil)

	indices := []uint16{0, 1, 2, 2, 3, 0}
	buffer, err := uploader.Upload(indices, core1_0.BufferUsageIndexBuffer)
	require.NoError(t, err)
	require.Equal(t, binary.Size(indices), buffer.Size)

	readback, err := uploader.Download(buffer)
	require.NoError(t, err)
	require.Equal(t, encodeForDevice(t, indices), readback)

	// Only the destination survives; every staging buffer is gone.
	require.Equal(t, 1, device.liveBuffers)
}

func TestUploadFreesStagingAfterQueueIdle(t *testing.T) {
	device := newFakeDevice()
	uploader := NewUploader(device, nil)

	mark := len(device.calls)
	_, err := uploader.Upload([]uint16{1, 2, 3}, core1_0.BufferUsageVertexBuffer)
	require.NoError(t, err)

	calls := device.callsSince(mark)
	idle := -1
	destroy := -1
	for i, call := range calls {
		if call == "WaitQueueIdle" && idle < 0 {
			idle = i
		}
		if call == "DestroyBuffer" {
			destroy = i
		}
	}
	require.GreaterOrEqual(t, idle, 0)
	require.Greater(t, destroy, idle, "staging must outlive the copy it feeds")
}

func TestUploadRejectsUnsizedPayload(t *testing.T) {
	device := newFakeDevice()
	uploader := NewUploader(device, nil)

	// int has no fixed wire size under encoding/binary.
	_, err := uploader.Upload([]int{1, 2, 3}, core1_0.BufferUsageVertexBuffer)
	require.ErrorContains(t, err, "binary size")
	require.Equal(t, 0, device.liveBuffers)
}

func TestUploadBatch(t *testing.T) {
	device := newFakeDevice()
	uploader := NewUploader(device, nil)

	jobs := []UploadJob{
		{Data: []uint16{0, 1, 2, 2, 3, 0}, Usage: core1_0.BufferUsageIndexBuffer},
		{Data: []float32{-0.5, -0.5, 0.5, 0.5}, Usage: core1_0.BufferUsageVertexBuffer},
		{Data: []uint32{7}, Usage: core1_0.BufferUsageUniformBuffer},
	}

	buffers, err := uploader.UploadBatch(jobs)
	require.NoError(t, err)
	require.Len(t, buffers, len(jobs))

	for i, buffer := range buffers {
		require.Equal(t, binary.Size(jobs[i].Data), buffer.Size)

		readback, err := uploader.Download(buffer)
		require.NoError(t, err)
		require.Equal(t, encodeForDevice(t, jobs[i].Data), readback, "job %d content", i)
	}

	require.Equal(t, len(jobs), device.liveBuffers)
}

func TestUploadBatchSingleSubmission(t *testing.T) {
	device := newFakeDevice()
	uploader := NewUploader(device, nil)

	jobs := []UploadJob{
		{Data: []uint16{1, 2}, Usage: core1_0.BufferUsageIndexBuffer},
		{Data: []uint16{3, 4}, Usage: core1_0.BufferUsageVertexBuffer},
	}

	mark := len(device.calls)
	_, err := uploader.UploadBatch(jobs)
	require.NoError(t, err)

	submits, idles, copies := 0, 0, 0
	for _, call := range device.callsSince(mark) {
		switch call {
		case "Submit":
			submits++
		case "WaitQueueIdle":
			idles++
		case "CmdCopyBuffer":
			copies++
		}
	}
	require.Equal(t, 1, submits)
	require.Equal(t, 1, idles)
	require.Equal(t, len(jobs), copies)
}

func TestUploadBatchManyJobs(t *testing.T) {
	device := newFakeDevice()
	uploader := NewUploader(device, nil)

	// Enough jobs that staging writes overlap later allocations; run under
	// -race this doubles as a check that concurrent staging stays safe.
	jobs := make([]UploadJob, 16)
	for i := range jobs {
		jobs[i] = UploadJob{
			Data:  []uint32{uint32(i), uint32(i * 2), uint32(i * 3)},
			Usage: core1_0.BufferUsageVertexBuffer,
		}
	}

	buffers, err := uploader.UploadBatch(jobs)
	require.NoError(t, err)
	require.Len(t, buffers, len(jobs))

	for i, buffer := range buffers {
		readback, err := uploader.Download(buffer)
		require.NoError(t, err)
		require.Equal(t, encodeForDevice(t, jobs[i].Data), readback, "job %d content", i)
	}
}

func TestUploadBatchEmpty(t *testing.T) {
	device := newFakeDevice()
	uploader := NewUploader(device, nil)

	buffers, err := uploader.UploadBatch(nil)
	require.NoError(t, err)
	require.Nil(t, buffers)
	require.Empty(t, device.calls)
}
