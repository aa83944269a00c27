package wire

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/telelink/internal/model"
)

func sampleSnapshot() model.Snapshot {
	return model.Snapshot{
		Timestamp: time.Date(2026, 10, 17, 9, 30, 15, 123456000, time.UTC),
		CPU:       model.CPU{Usage: 42.17, FrequencyMHz: 3600.4, Cores: 16, TemperatureC: 58.33, TemperatureEstimated: true},
		Memory:    model.Memory{UsagePercent: 61.2, UsedGB: 19.58, TotalGB: 31.9},
		Disk:      model.Disk{ReadMBs: 12.345, WriteMBs: 0.5, UsagePercent: 73.01},
		Network:   model.Network{UploadMBs: 0.061, DownloadMBs: 4.2},
		GPU:       model.GPU{Name: "NVIDIA GeForce RTX 3090", Usage: 87, MemoryPercent: 33.3, TemperatureC: 71},
		System:    model.System{Platform: "Linux", UptimeHours: 52, UptimeMinutes: 7},
		Audio:     model.Audio{Available: true, Device: "HDA Intel PCH", VolumePercent: 65, Muted: false},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sampleSnapshot()

	line, err := Encode(in)
	require.NoError(t, err)
	require.Equal(t, byte(Delimiter), line[len(line)-1])
	assert.Equal(t, 1, bytes.Count(line, []byte{Delimiter}), "one record per line")

	out, err := Decode(line)
	require.NoError(t, err)

	const tol = 1e-3
	assert.InDelta(t, in.CPU.Usage, out.CPU.Usage, tol)
	assert.InDelta(t, in.CPU.FrequencyMHz, out.CPU.FrequencyMHz, tol)
	assert.Equal(t, in.CPU.Cores, out.CPU.Cores)
	assert.InDelta(t, in.CPU.TemperatureC, out.CPU.TemperatureC, tol)
	assert.True(t, out.CPU.TemperatureEstimated)
	assert.InDelta(t, in.Memory.UsagePercent, out.Memory.UsagePercent, tol)
	assert.InDelta(t, in.Memory.UsedGB, out.Memory.UsedGB, tol)
	assert.InDelta(t, in.Memory.TotalGB, out.Memory.TotalGB, tol)
	assert.InDelta(t, in.Disk.ReadMBs, out.Disk.ReadMBs, tol)
	assert.InDelta(t, in.Disk.WriteMBs, out.Disk.WriteMBs, tol)
	assert.InDelta(t, in.Disk.UsagePercent, out.Disk.UsagePercent, tol)
	assert.InDelta(t, in.Network.UploadMBs, out.Network.UploadMBs, tol)
	assert.InDelta(t, in.Network.DownloadMBs, out.Network.DownloadMBs, tol)
	assert.InDelta(t, in.GPU.Usage, out.GPU.Usage, tol)
	assert.InDelta(t, in.GPU.MemoryPercent, out.GPU.MemoryPercent, tol)
	assert.InDelta(t, in.GPU.TemperatureC, out.GPU.TemperatureC, tol)
	assert.Equal(t, in.GPU.Name, out.GPU.Name)
	assert.Equal(t, in.System, out.System)
	assert.Equal(t, in.Audio, out.Audio)
	assert.True(t, in.Timestamp.Equal(out.Timestamp))
}

func TestEncodeSchemaKeys(t *testing.T) {
	s := sampleSnapshot()
	s.CPU.TemperatureEstimated = false

	line, err := Encode(s)
	require.NoError(t, err)

	var doc map[string]map[string]any
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(line, &raw))
	for _, key := range []string{"cpu", "memory", "disk", "network", "gpu", "system", "timestamp"} {
		assert.Contains(t, raw, key)
	}
	delete(raw, "timestamp")
	b, _ := json.Marshal(raw)
	require.NoError(t, json.Unmarshal(b, &doc))

	assert.ElementsMatch(t, []string{"usage", "frequency", "cores", "temperature"}, keys(doc["cpu"]))
	assert.ElementsMatch(t, []string{"usage_percent", "used_gb", "total_gb"}, keys(doc["memory"]))
	assert.ElementsMatch(t, []string{"read_speed", "write_speed", "usage_percent"}, keys(doc["disk"]))
	assert.ElementsMatch(t, []string{"upload_speed", "download_speed"}, keys(doc["network"]))
	assert.ElementsMatch(t, []string{"usage", "memory_percent", "temperature", "name"}, keys(doc["gpu"]))
	assert.ElementsMatch(t, []string{"uptime_hours", "uptime_minutes", "platform"}, keys(doc["system"]))
}

func TestEncodeAbsentGPU(t *testing.T) {
	s := sampleSnapshot()
	s.GPU = model.GPU{}

	line, err := Encode(s)
	require.NoError(t, err)
	assert.Contains(t, string(line), `"name":"N/A"`)
	assert.Contains(t, string(line), `"gpu":{"usage":0,"memory_percent":0,"temperature":0`)
}

func TestDecodeZonelessRecordWithoutAudio(t *testing.T) {
	line := `{"timestamp": "2025-01-04T18:22:05.551234", "cpu": {"usage": 12.5, "frequency": 3701.0, "cores": 24, "temperature": 38.8}, ` +
		`"memory": {"usage_percent": 40.1, "used_gb": 25.6, "total_gb": 63.9}, "disk": {"read_speed": 0.2, "write_speed": 1.4, "usage_percent": 55.0}, ` +
		`"network": {"upload_speed": 0.0, "download_speed": 0.1}, "gpu": {"usage": 3, "memory_percent": 9.8, "temperature": 41, "name": "NVIDIA GeForce RTX 3090"}, ` +
		`"system": {"uptime_hours": 3, "uptime_minutes": 14, "platform": "Windows"}}` + "\n"

	s, err := Decode([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, 24, s.CPU.Cores)
	assert.False(t, s.CPU.TemperatureEstimated)
	assert.Equal(t, "Windows", s.System.Platform)
	assert.Equal(t, model.NoAudio(), s.Audio, "audio is optional on the wire")
	assert.Equal(t, 2025, s.Timestamp.Year())
	assert.Equal(t, 551234000, s.Timestamp.Nanosecond())
}

func TestDecodeRejects(t *testing.T) {
	valid, err := Encode(sampleSnapshot())
	require.NoError(t, err)

	mutate := func(fn func(m map[string]any)) []byte {
		var m map[string]any
		require.NoError(t, json.Unmarshal(valid, &m))
		fn(m)
		b, err := json.Marshal(m)
		require.NoError(t, err)
		return b
	}

	tests := []struct {
		name string
		line []byte
		want error
	}{
		{"empty", []byte("   \n"), ErrMalformed},
		{"garbage", []byte("{not json"), ErrMalformed},
		{"array", []byte("[1,2,3]"), ErrMalformed},
		{"truncated", valid[:len(valid)/2], ErrMalformed},
		{"string for number", mutate(func(m map[string]any) { m["cpu"].(map[string]any)["usage"] = "high" }), ErrMalformed},
		{"missing section", mutate(func(m map[string]any) { delete(m, "network") }), ErrSchema},
		{"missing field", mutate(func(m map[string]any) { delete(m["gpu"].(map[string]any), "name") }), ErrSchema},
		{"missing timestamp", mutate(func(m map[string]any) { delete(m, "timestamp") }), ErrSchema},
		{"bad timestamp", mutate(func(m map[string]any) { m["timestamp"] = "yesterday" }), ErrSchema},
		{"percent out of range", mutate(func(m map[string]any) { m["memory"].(map[string]any)["usage_percent"] = 140.0 }), ErrSchema},
		{"negative rate", mutate(func(m map[string]any) { m["disk"].(map[string]any)["read_speed"] = -1.0 }), ErrSchema},
		{"used above total", mutate(func(m map[string]any) { m["memory"].(map[string]any)["used_gb"] = 99.0 }), ErrSchema},
		{"zero cores", mutate(func(m map[string]any) { m["cpu"].(map[string]any)["cores"] = 0 }), ErrSchema},
		{"minutes overflow", mutate(func(m map[string]any) { m["system"].(map[string]any)["uptime_minutes"] = 60 }), ErrSchema},
		{"oversized", append(bytes.Repeat([]byte(" "), 1), bytes.Repeat([]byte("a"), MaxRecordSize+1)...), ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.line)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	valid, err := Encode(sampleSnapshot())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(valid, &m))
	m["battery"] = map[string]any{"percent": 80}
	b, err := json.Marshal(m)
	require.NoError(t, err)

	_, err = Decode(b)
	assert.NoError(t, err)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
