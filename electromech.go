// Copyright 2026 the ilcbus authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package ilcbus

// Rx timeouts in microseconds for the electromechanical queries.
const (
	forceStatusTimeout = 1800
	calibrationTimeout = 1800
	pressureTimeout    = 1800
	offsetWriteTimeout = 36500
)

// CalibrationData is the ADC calibration block reported by function
// 110: per-channel calibration constants, offsets and sensitivities
// for the main and backup sensors.
type CalibrationData struct {
	MainADCK        [4]float32
	MainOffset      [4]float32
	MainSensitivity [4]float32

	BackupADCK        [4]float32
	BackupOffset      [4]float32
	BackupSensitivity [4]float32
}

// ElectromechanicalPneumaticILC drives electromechanical and pneumatic
// actuator units on top of the generic ILC functions. The extra
// responses carry telemetry, so they bypass the change cache; every
// reply fires its hook.
type ElectromechanicalPneumaticILC struct {
	*ILC

	OnHardpointForceStatus func(address, status uint8, encoderPosition int32, loadCellForce float32)
	OnOffsetAndSensitivity func(address uint8)
	OnCalibrationData      func(address uint8, data CalibrationData)
	OnMezzaninePressure    func(address uint8, primaryPush, primaryPull, secondaryPush, secondaryPull float32)
}

// NewElectromechanicalPneumaticILC returns the façade for the given
// bus number with the actuator function handlers registered on top of
// the generic ones.
func NewElectromechanicalPneumaticILC(bus uint8) *ElectromechanicalPneumaticILC {
	em := &ElectromechanicalPneumaticILC{ILC: NewILC(bus)}

	em.AddResponse(FuncReportHardpointForceStatus, em.handleHardpointForceStatus, FuncReportHardpointForceStatus|0x80, nil)
	em.AddResponse(FuncSetOffsetAndSensitivity, em.handleOffsetAndSensitivity, FuncSetOffsetAndSensitivity|0x80, nil)
	em.AddResponse(FuncReportCalibrationData, em.handleCalibrationData, FuncReportCalibrationData|0x80, nil)
	em.AddResponse(FuncReportMezzaninePressure, em.handleMezzaninePressure, FuncReportMezzaninePressure|0x80, nil)

	return em
}

// ReportHardpointForceStatus queries hardpoint force and status
// (function 67).
func (em *ElectromechanicalPneumaticILC) ReportHardpointForceStatus(address uint8) error {
	return em.CallFunction(address, FuncReportHardpointForceStatus, forceStatusTimeout)
}

// SetOffsetAndSensitivity writes offset and sensitivity for an ADC
// channel (1-4, function 81).
func (em *ElectromechanicalPneumaticILC) SetOffsetAndSensitivity(address, channel uint8, offset, sensitivity float32) error {
	return em.CallFunction(address, FuncSetOffsetAndSensitivity, offsetWriteTimeout, channel, offset, sensitivity)
}

// ReportCalibrationData queries the ADC calibration block (function 110).
func (em *ElectromechanicalPneumaticILC) ReportCalibrationData(address uint8) error {
	return em.CallFunction(address, FuncReportCalibrationData, calibrationTimeout)
}

// ReportMezzaninePressure queries the mezzanine pressure cells
// (function 119).
func (em *ElectromechanicalPneumaticILC) ReportMezzaninePressure(address uint8) error {
	return em.CallFunction(address, FuncReportMezzaninePressure, pressureTimeout)
}

func (em *ElectromechanicalPneumaticILC) handleHardpointForceStatus(address uint8) error {
	status, err := em.ReadU8()
	if err != nil {
		return err
	}
	encoderPosition, err := em.ReadI32()
	if err != nil {
		return err
	}
	loadCellForce, err := em.ReadF32()
	if err != nil {
		return err
	}
	if err := em.CheckCRC(); err != nil {
		return err
	}
	if em.OnHardpointForceStatus != nil {
		em.OnHardpointForceStatus(address, status, encoderPosition, loadCellForce)
	}
	return nil
}

// Function 81 acknowledges with a bare CRC.
func (em *ElectromechanicalPneumaticILC) handleOffsetAndSensitivity(address uint8) error {
	if err := em.CheckCRC(); err != nil {
		return err
	}
	if em.OnOffsetAndSensitivity != nil {
		em.OnOffsetAndSensitivity(address)
	}
	return nil
}

func (em *ElectromechanicalPneumaticILC) handleCalibrationData(address uint8) error {
	var data CalibrationData
	groups := []*[4]float32{
		&data.MainADCK, &data.MainOffset, &data.MainSensitivity,
		&data.BackupADCK, &data.BackupOffset, &data.BackupSensitivity,
	}
	for _, group := range groups {
		for i := range group {
			v, err := em.ReadF32()
			if err != nil {
				return err
			}
			group[i] = v
		}
	}
	if err := em.CheckCRC(); err != nil {
		return err
	}
	if em.OnCalibrationData != nil {
		em.OnCalibrationData(address, data)
	}
	return nil
}

func (em *ElectromechanicalPneumaticILC) handleMezzaninePressure(address uint8) error {
	primaryPush, err := em.ReadF32()
	if err != nil {
		return err
	}
	primaryPull, err := em.ReadF32()
	if err != nil {
		return err
	}
	secondaryPush, err := em.ReadF32()
	if err != nil {
		return err
	}
	secondaryPull, err := em.ReadF32()
	if err != nil {
		return err
	}
	if err := em.CheckCRC(); err != nil {
		return err
	}
	if em.OnMezzaninePressure != nil {
		em.OnMezzaninePressure(address, primaryPush, primaryPull, secondaryPush, secondaryPull)
	}
	return nil
}
