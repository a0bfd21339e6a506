package main

import (
	"fmt"

	"go.einride.tech/can"

	"carctrl-core/closed_loop/carcontroller"
	"carctrl-core/utils"
)

const counterModulo = 16

// Packer turns controller commands into bus frames using the CAN map.
type Packer struct {
	cmap *utils.CANMap
}

// NewPacker checks that the map defines every frame a controller for gen
// can emit.
func NewPacker(cmap *utils.CANMap, gen carcontroller.Generation) (*Packer, error) {
	required := []string{frameCamLKAS, frameTISteer}
	switch gen {
	case carcontroller.GenOne:
		required = append(required, frameCrzBtns, frameCamLaneInfo)
	case carcontroller.GenTwo:
		required = append(required, frameACC)
	}
	for _, name := range required {
		fd, err := cmap.FrameByName(name)
		if err != nil {
			return nil, err
		}
		if !fd.IsTX() {
			return nil, fmt.Errorf("frame %s has direction %q, want tx or both", name, fd.Direction)
		}
	}
	return &Packer{cmap: cmap}, nil
}

func (p *Packer) Pack(cmd carcontroller.Command) (can.Frame, error) {
	name, values, err := frameValues(cmd)
	if err != nil {
		return can.Frame{}, err
	}
	f, err := p.cmap.EncodeEinrideFrame(name, values)
	if err != nil {
		return can.Frame{}, fmt.Errorf("pack %s: %w", cmd.Kind, err)
	}
	return f, nil
}

// frameValues maps a command onto its frame. Passthrough signals are
// copied first so the command's own fields win.
func frameValues(cmd carcontroller.Command) (string, map[string]float64, error) {
	ctr := float64(cmd.Frame % counterModulo)

	switch cmd.Kind {
	case carcontroller.SteeringTorque:
		v := passthrough(cmd.Signals)
		v["LKAS_REQUEST"] = float64(cmd.Torque)
		v["CTR"] = ctr
		return frameCamLKAS, v, nil

	case carcontroller.InterceptorSteeringTorque:
		return frameTISteer, map[string]float64{
			"TI_TORQUE_REQUEST": float64(cmd.Torque),
			"TI_ENABLE":         boolToFloat(cmd.Torque != 0),
			"CTR":               ctr,
		}, nil

	case carcontroller.Button:
		v := map[string]float64{
			"CTR": float64((cmd.ButtonCounter + 1) % counterModulo),
		}
		switch cmd.Button {
		case carcontroller.ButtonCancel:
			v["CAN_OFF"], v["CAN_OFF_INV"] = 1, 0
		case carcontroller.ButtonResume:
			v["RES"], v["RES_INV"] = 1, 0
		default:
			return "", nil, fmt.Errorf("unknown button %s", cmd.Button)
		}
		return frameCrzBtns, v, nil

	case carcontroller.AccHoldResume:
		v := passthrough(cmd.Signals)
		v["ACCEL_CMD"] = cmd.Accel
		v["HOLD"] = boolToFloat(cmd.Hold)
		v["RESUME"] = boolToFloat(cmd.Resume)
		v["CTR"] = ctr
		return frameACC, v, nil

	case carcontroller.Alert:
		v := passthrough(cmd.Signals)
		v["LDW"] = boolToFloat(cmd.LDW)
		v["HANDS_ON_STEER_WARN"] = boolToFloat(cmd.SteerRequired)
		return frameCamLaneInfo, v, nil
	}
	return "", nil, fmt.Errorf("unknown command kind %s", cmd.Kind)
}

func passthrough(s carcontroller.Signals) map[string]float64 {
	out := make(map[string]float64, len(s)+4)
	for k, v := range s {
		out[k] = v
	}
	return out
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
