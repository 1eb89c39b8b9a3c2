package midi

import (
	"fmt"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

const scanTimeout = 3 * time.Second

// scanPorts queries the driver with a timeout (CoreMIDI can hang).
func scanPorts() ([]drivers.In, []drivers.Out, error) {
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}

	ch := make(chan portsResult, 1)
	go func() {
		inPorts := gomidi.GetInPorts()
		outPorts := gomidi.GetOutPorts()
		ch <- portsResult{inPorts: inPorts, outPorts: outPorts}
	}()

	select {
	case result := <-ch:
		return result.inPorts, result.outPorts, nil
	case <-time.After(scanTimeout):
		// User needs to run: sudo killall coreaudiod midiserver
		return nil, nil, fmt.Errorf("MIDI port scan timed out after %v", scanTimeout)
	}
}

// ListOutputs returns the names of all MIDI output ports.
func ListOutputs() ([]string, error) {
	_, outs, err := scanPorts()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, p := range outs {
		names[i] = p.String()
	}
	return names, nil
}

// ListInputs returns the names of all MIDI input ports.
func ListInputs() ([]string, error) {
	ins, _, err := scanPorts()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ins))
	for i, p := range ins {
		names[i] = p.String()
	}
	return names, nil
}

// findOutPort resolves a port by exact name, then by case-insensitive
// substring. An empty name picks the first port.
func findOutPort(name string) (drivers.Out, error) {
	_, outs, err := scanPorts()
	if err != nil {
		return nil, err
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("no MIDI output ports available")
	}
	if name == "" {
		return outs[0], nil
	}
	for _, p := range outs {
		if p.String() == name {
			return p, nil
		}
	}
	lower := strings.ToLower(name)
	for _, p := range outs {
		if strings.Contains(strings.ToLower(p.String()), lower) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no MIDI output port matches %q", name)
}
