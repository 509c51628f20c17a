package recorder

import (
	"context"
	"errors"
	"testing"
)

const arecordOutput = `**** List of CAPTURE Hardware Devices ****
card 0: PCH [HDA Intel PCH], device 0: ALC257 Analog [ALC257 Analog]
  Subdevices: 1/1
  Subdevice #0: subdevice #0
card 2: Webcam [C922 Pro Stream Webcam], device 0: USB Audio [USB Audio]
  Subdevices: 1/1
  Subdevice #0: subdevice #0
`

func TestParseArecordList(t *testing.T) {
	devices := ParseArecordList([]byte(arecordOutput))
	if len(devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d: %v", len(devices), devices)
	}

	if devices[0].ID != "hw:0,0" || devices[0].Name != "PCH (hw:0,0)" {
		t.Errorf("Unexpected first device: %+v", devices[0])
	}
	if devices[1].ID != "hw:2,0" || devices[1].Name != "Webcam (hw:2,0)" {
		t.Errorf("Unexpected second device: %+v", devices[1])
	}

	if got := ParseArecordList(nil); len(got) != 0 {
		t.Errorf("Expected no devices from empty output, got %v", got)
	}
}

func TestParsePowerShellDevices(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"single object", `{"Name":"Microphone (Realtek)","ID":"{0.0.1.00000000}.{abc}"}`, 1, false},
		{"array", `[{"Name":"Mic A","ID":"a"},{"Name":"Mic B","ID":"b"}]`, 2, false},
		{"empty", "  \r\n", 0, false},
		{"garbage", "Get-AudioDevice : not recognized", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			devices, err := ParsePowerShellDevices([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(devices) != tt.want {
				t.Errorf("Expected %d devices, got %d", tt.want, len(devices))
			}
		})
	}
}

func TestListDevicesDispatch(t *testing.T) {
	var called string
	run := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		called = name
		if name == "arecord" {
			return []byte(arecordOutput), nil
		}
		return nil, errors.New("unexpected command")
	}

	devices, err := ListDevices(context.Background(), "linux", run)
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if called != "arecord" || len(devices) != 2 {
		t.Errorf("Expected arecord with 2 devices, got %s with %d", called, len(devices))
	}

	called = ""
	devices, err = ListDevices(context.Background(), "darwin", run)
	if err != nil || len(devices) != 0 || called != "" {
		t.Errorf("Expected empty list without running anything on darwin, got %v %v %q", devices, err, called)
	}
}
