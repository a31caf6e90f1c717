package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sarchlab/mcx/mcxerr"
	"github.com/sarchlab/mcx/model"
)

// fileConfig is the on-disk shape of the input description — an in-memory
// tree of configuration objects whose parsing is external to the core.
// JSON stands in for whatever declarative format a real deployment would
// use (the core never looks past the model.Task, model.ComponentDesc and
// model.Connection values loadConfig produces); reading it
// is this CLI's own business, not the core's.
type fileConfig struct {
	Task       fileTask        `json:"task"`
	Components []fileComponent `json:"components"`
	Connections []fileConnection `json:"connections"`
}

type fileTask struct {
	StartSeconds float64 `json:"startSeconds"`
	EndSeconds   float64 `json:"endSeconds"`
	StepSeconds  float64 `json:"stepSeconds"`

	SampleInterval map[string]int `json:"sampleInterval"`

	InitLoopIterationBudget int `json:"initLoopIterationBudget"`
	StepLoopIterationBudget int `json:"stepLoopIterationBudget"`
	AbsTol                  float64 `json:"absTol"`
	RelTol                  float64 `json:"relTol"`

	RealTimeFactor bool `json:"realTimeFactor"`
	Parallel       bool `json:"parallel"`
}

type fileComponent struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"` // "fmi1" | "fmi2"
	PackagePath string `json:"packagePath"`

	Ports []filePort `json:"ports"`

	StepSizeOverrideSeconds float64 `json:"stepSizeOverrideSeconds"`
	TriggerSequence         int     `json:"triggerSequence"`
	LoggingEnabled          bool    `json:"loggingEnabled"`
	LogCategories           []string `json:"logCategories"`
}

type filePort struct {
	Name      string          `json:"name"`
	Direction string          `json:"direction"` // "in" | "out"
	Channels  []fileChannel   `json:"channels"`
}

type fileChannel struct {
	Name           string  `json:"name"`
	Type           string  `json:"type"` // "real" | "integer" | "boolean" | "string" | "binary"
	ValueReference uint32  `json:"valueReference"`
	Tunable        bool    `json:"tunable"`
	Discrete       bool    `json:"discrete"`
}

type fileConnection struct {
	SourceComponent string  `json:"sourceComponent"`
	SourceChannel   string  `json:"sourceChannel"`
	SinkComponent   string  `json:"sinkComponent"`
	SinkChannel     string  `json:"sinkChannel"`
	Scale           *float64 `json:"scale"`
	Offset          *float64 `json:"offset"`
}

func loadConfig(path string) (*model.Task, []*model.ComponentDesc, []*model.Connection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, mcxerr.Wrap(mcxerr.IOFailure, "", "read config", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, nil, nil, mcxerr.Wrap(mcxerr.ConfigInvalid, "", "parse config", err)
	}

	task := &model.Task{
		Start: durationOf(fc.Task.StartSeconds),
		End:   durationOf(fc.Task.EndSeconds),
		Step:  durationOf(fc.Task.StepSeconds),

		SampleInterval: fc.Task.SampleInterval,

		InitLoopIterationBudget: fc.Task.InitLoopIterationBudget,
		StepLoopIterationBudget: fc.Task.StepLoopIterationBudget,
		AbsTol:                  fc.Task.AbsTol,
		RelTol:                  fc.Task.RelTol,

		RealTimeFactor: fc.Task.RealTimeFactor,
		Parallel:       fc.Task.Parallel,
	}

	byName := make(map[string]*model.Channel)
	descs := make([]*model.ComponentDesc, len(fc.Components))
	for i, fcomp := range fc.Components {
		desc, err := buildComponentDesc(fcomp, byName)
		if err != nil {
			return nil, nil, nil, err
		}
		descs[i] = desc
	}

	conns := make([]*model.Connection, len(fc.Connections))
	for i, fconn := range fc.Connections {
		conn, err := buildConnection(fconn, byName)
		if err != nil {
			return nil, nil, nil, err
		}
		conns[i] = conn
	}

	return task, descs, conns, nil
}

func durationOf(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func buildComponentDesc(fcomp fileComponent, byName map[string]*model.Channel) (*model.ComponentDesc, error) {
	kind := model.Fmi2CoSim
	if fcomp.Kind == "fmi1" {
		kind = model.Fmi1CoSim
	}

	ports := make([]*model.Port, len(fcomp.Ports))
	for i, fp := range fcomp.Ports {
		dir := model.In
		if fp.Direction == "out" {
			dir = model.Out
		}

		channels := make([]*model.Channel, len(fp.Channels))
		for j, fch := range fp.Channels {
			typ, ok := channelType(fch.Type)
			if !ok {
				return nil, mcxerr.New(mcxerr.ConfigInvalid, fcomp.Name, "parse config",
					fmt.Sprintf("channel %q: unknown type %q", fch.Name, fch.Type))
			}
			ch := model.NewChannel(fcomp.Name+"."+fch.Name, typ, fch.ValueReference)
			ch.Tunable = fch.Tunable
			ch.Discrete = fch.Discrete
			channels[j] = ch
			byName[fcomp.Name+"."+fch.Name] = ch
		}

		ports[i] = &model.Port{Name: fp.Name, Direction: dir, Channels: channels}
	}

	return &model.ComponentDesc{
		Name:            fcomp.Name,
		Kind:            kind,
		PackagePath:     fcomp.PackagePath,
		Ports:           ports,
		StepSizeOverride: durationOf(fcomp.StepSizeOverrideSeconds),
		TriggerSequence: fcomp.TriggerSequence,
		LoggingEnabled:  fcomp.LoggingEnabled,
		LogCategories:   fcomp.LogCategories,
	}, nil
}

func channelType(s string) (model.Type, bool) {
	switch s {
	case "real":
		return model.Real, true
	case "integer":
		return model.Integer, true
	case "boolean":
		return model.Boolean, true
	case "string":
		return model.String, true
	case "binary":
		return model.Binary, true
	default:
		return 0, false
	}
}

func buildConnection(fconn fileConnection, byName map[string]*model.Channel) (*model.Connection, error) {
	src, ok := byName[fconn.SourceComponent+"."+fconn.SourceChannel]
	if !ok {
		return nil, mcxerr.New(mcxerr.UnknownVariable, fconn.SourceComponent, "parse config",
			"unknown source channel "+fconn.SourceChannel)
	}
	sink, ok := byName[fconn.SinkComponent+"."+fconn.SinkChannel]
	if !ok {
		return nil, mcxerr.New(mcxerr.UnknownVariable, fconn.SinkComponent, "parse config",
			"unknown sink channel "+fconn.SinkChannel)
	}

	conn := &model.Connection{
		SourceComponent: fconn.SourceComponent, SourceChannel: src,
		SinkComponent: fconn.SinkComponent, SinkChannel: sink,
	}
	if fconn.Scale != nil || fconn.Offset != nil {
		t := model.Identity
		if fconn.Scale != nil {
			t.Scale = *fconn.Scale
		}
		if fconn.Offset != nil {
			t.Offset = *fconn.Offset
		}
		conn.Override = &t
	}
	return conn, nil
}
