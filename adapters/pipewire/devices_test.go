package pipewire

import (
	"errors"
	"testing"

	"github.com/mnemosyne/server/domain/entities"
)

const sampleDump = `[
  {
    "id": 30,
    "type": "PipeWire:Interface:Node",
    "info": {
      "props": {
        "media.class": "Audio/Source",
        "node.name": "alsa_input.usb-mic",
        "node.description": "USB Microphone"
      }
    }
  },
  {
    "id": 31,
    "type": "PipeWire:Interface:Node",
    "info": {
      "props": {
        "media.class": "Audio/Sink",
        "node.name": "alsa_output.hdmi",
        "node.description": "HDMI Audio"
      }
    }
  },
  {
    "id": 32,
    "type": "PipeWire:Interface:Node",
    "info": {
      "props": {
        "media.class": "Video/Source",
        "node.name": "v4l2_input.webcam"
      }
    }
  },
  {
    "id": 33,
    "type": "PipeWire:Interface:Link",
    "info": { "props": {} }
  },
  {
    "id": 34,
    "type": "PipeWire:Interface:Node",
    "info": {
      "props": {
        "media.class": "Audio/Source",
        "node.name": "alsa_output.hdmi.monitor"
      }
    }
  }
]`

func TestParseDump(t *testing.T) {
	devices, err := parseDump([]byte(sampleDump))
	if err != nil {
		t.Fatalf("parseDump failed: %v", err)
	}

	if len(devices) != 3 {
		t.Fatalf("Expected 3 audio devices, got %d: %+v", len(devices), devices)
	}

	mic := devices[0]
	if mic.ID != 30 || mic.Class != entities.DeviceClassInput || mic.IsMonitor {
		t.Errorf("Unexpected mic device %+v", mic)
	}
	if mic.Description != "USB Microphone" {
		t.Errorf("Expected description, got %q", mic.Description)
	}

	sink := devices[1]
	if sink.Class != entities.DeviceClassOutput {
		t.Errorf("Expected sink as output, got %+v", sink)
	}
	if sink.CaptureTarget() != "alsa_output.hdmi.monitor" {
		t.Errorf("Expected monitor capture target, got %s", sink.CaptureTarget())
	}

	monitor := devices[2]
	if !monitor.IsMonitor {
		t.Errorf("Expected monitor flag on %+v", monitor)
	}
	if monitor.Description != "alsa_output.hdmi.monitor" {
		t.Errorf("Expected name as fallback description, got %q", monitor.Description)
	}
}

func TestParseDumpRejectsGarbage(t *testing.T) {
	_, err := parseDump([]byte("not json"))
	if !errors.Is(err, entities.ErrDeviceEnumeration) {
		t.Errorf("Expected ErrDeviceEnumeration, got %v", err)
	}
}

func TestParseDumpEmpty(t *testing.T) {
	devices, err := parseDump([]byte("[]"))
	if err != nil {
		t.Fatalf("parseDump failed: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("Expected no devices, got %d", len(devices))
	}
}
