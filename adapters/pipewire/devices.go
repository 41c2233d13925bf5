package pipewire

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/mnemosyne/server/domain/entities"
)

const nodeInterface = "PipeWire:Interface:Node"

// Registry enumerates audio endpoints from the PipeWire server via
// pw-dump.
type Registry struct {
	logger *zap.Logger
}

// NewRegistry creates a PipeWire device registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{logger: logger}
}

type dumpObject struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
	Info struct {
		Props map[string]interface{} `json:"props"`
	} `json:"info"`
}

// ListDevices lists capturable sources and sinks. Sinks are reported as
// outputs whose monitor source can be tapped for system audio.
func (r *Registry) ListDevices(ctx context.Context) ([]entities.Device, error) {
	out, err := exec.CommandContext(ctx, "pw-dump").Output()
	if err != nil {
		return nil, fmt.Errorf("%w: pw-dump: %v", entities.ErrDeviceEnumeration, err)
	}

	devices, err := parseDump(out)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Enumerated audio devices", zap.Int("count", len(devices)))
	return devices, nil
}

// parseDump extracts capturable audio nodes from pw-dump JSON.
func parseDump(out []byte) ([]entities.Device, error) {
	var objects []dumpObject
	if err := json.Unmarshal(out, &objects); err != nil {
		return nil, fmt.Errorf("%w: parsing pw-dump output: %v", entities.ErrDeviceEnumeration, err)
	}

	devices := make([]entities.Device, 0)
	for _, obj := range objects {
		if obj.Type != nodeInterface {
			continue
		}
		mediaClass := stringProp(obj.Info.Props, "media.class")
		if !strings.Contains(mediaClass, "Audio") {
			continue
		}

		var class entities.DeviceClass
		switch {
		case strings.Contains(mediaClass, "Source"):
			class = entities.DeviceClassInput
		case strings.Contains(mediaClass, "Sink"):
			class = entities.DeviceClassOutput
		default:
			continue
		}

		name := stringProp(obj.Info.Props, "node.name")
		description := stringProp(obj.Info.Props, "node.description")
		if description == "" {
			description = name
		}

		devices = append(devices, entities.Device{
			ID:          obj.ID,
			Name:        name,
			Description: description,
			Class:       class,
			IsMonitor:   strings.Contains(name, ".monitor") || strings.Contains(description, "Monitor"),
		})
	}

	return devices, nil
}

func stringProp(props map[string]interface{}, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}
