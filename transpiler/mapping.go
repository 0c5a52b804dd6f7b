package transpiler

import (
	"fmt"
	"strconv"

	"github.com/oqtopus-team/bitorder/core"
	"go.uber.org/zap"
)

// QubitLayout is the JSON recorded in an experiment header.
type QubitLayout struct {
	QubitMapping map[string]int `json:"qubit_mapping"`
	BitMapping   map[string]int `json:"bit_mapping"`
}

func parseQubitLayout(s string) (*QubitLayout, error) {
	var m QubitLayout
	if err := jsonIter.Unmarshal([]byte(s), &m); err != nil {
		zap.L().Error(fmt.Sprintf("failed to unmarshal qubit layout:%s/reason:%s", s, err))
		return nil, err
	}
	return &m, nil
}

func toVirtualPhysicalMappingFromString(qubitLayout string) (core.VirtualPhysicalMappingMap, error) {
	m, err := parseQubitLayout(qubitLayout)
	if err != nil {
		return nil, err
	}
	d, err := jsonIter.Marshal(m.QubitMapping)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to marshal qubit mapping:%v/reason:%s", m.QubitMapping, err))
		return nil, err
	}
	return core.ParseVirtualPhysicalMapping(d)
}

func toPhysicalVirtualMappingFromString(qubitLayout string) (core.PhysicalVirtualMapping, error) {
	m, err := parseQubitLayout(qubitLayout)
	if err != nil {
		return nil, err
	}
	pvm := core.PhysicalVirtualMapping{}
	for k, v := range m.QubitMapping {
		num, err := strconv.ParseUint(k, 10, 32)
		if err != nil {
			zap.L().Error(fmt.Sprintf("failed to convert qubit index:%s/reason:%s", k, err))
			return nil, err
		}
		pvm[uint32(v)] = uint32(num)
	}
	return pvm, nil
}
