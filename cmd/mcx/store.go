package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sarchlab/mcx/model"
	"github.com/sarchlab/mcx/result"
)

// fileStore is the concrete result.Store this binary wires: one CSV file per
// component per kind, created on its first row, flushed after every row
// unless FLUSH_STORE is false, and closed on Finished.
// The core package only pins the Store interface (serialization format is
// explicitly external); this is that external collaborator.
type fileStore struct {
	dir         string
	descs       []*model.ComponentDesc
	flushEvery  bool

	writers map[string]*csv.Writer
	files   map[string]*os.File
}

func newFileStore(dir string, descs []*model.ComponentDesc) *fileStore {
	return &fileStore{
		dir:        dir,
		descs:      descs,
		flushEvery: boolFromEnv("FLUSH_STORE", true),
		writers:    make(map[string]*csv.Writer),
		files:      make(map[string]*os.File),
	}
}

func (s *fileStore) writerFor(desc *model.ComponentDesc, kind result.Kind) (*csv.Writer, error) {
	key := desc.Name + "." + string(kind)
	if w, ok := s.writers[key]; ok {
		return w, nil
	}

	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return nil, err
		}
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s.%s.csv", desc.Name, kind))
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(header(desc, kind)); err != nil {
		f.Close()
		return nil, err
	}

	s.files[key] = f
	s.writers[key] = w
	return w, nil
}

func header(desc *model.ComponentDesc, kind result.Kind) []string {
	row := []string{"row"}
	if kind == result.RealTimeFactor {
		return append(row, "realTimeFactor")
	}
	for _, p := range desc.Ports {
		if !kindMatchesPort(kind, p) {
			continue
		}
		for _, ch := range p.Channels {
			row = append(row, ch.Name)
		}
	}
	return row
}

// kindMatchesPort classifies ports per kind: Local is an Out port explicitly
// marked Optional, as in fmi.Component.channelsForBucket's Locals bucket.
// Out here excludes those Optional ports, whereas the adapter's Outputs
// bucket includes them.
func kindMatchesPort(kind result.Kind, p *model.Port) bool {
	switch kind {
	case result.In:
		return p.Direction == model.In
	case result.Out:
		return p.Direction == model.Out && p.Mode != model.Optional
	case result.Local:
		return p.Direction == model.Out && p.Mode == model.Optional
	default:
		return false
	}
}

func (s *fileStore) Store(kind result.Kind, componentIndex, rowIndex int) error {
	if componentIndex < 0 || componentIndex >= len(s.descs) {
		return fmt.Errorf("filestore: component index %d out of range", componentIndex)
	}
	desc := s.descs[componentIndex]

	w, err := s.writerFor(desc, kind)
	if err != nil {
		return err
	}

	row := []string{strconv.Itoa(rowIndex)}
	if kind == result.RealTimeFactor {
		row = append(row, "")
	} else {
		for _, p := range desc.Ports {
			if !kindMatchesPort(kind, p) {
				continue
			}
			for _, ch := range p.Channels {
				row = append(row, formatValue(ch))
			}
		}
	}

	if err := w.Write(row); err != nil {
		return err
	}
	if s.flushEvery {
		w.Flush()
		return w.Error()
	}
	return nil
}

func formatValue(ch *model.Channel) string {
	v, ok := ch.Latest()
	if !ok {
		return ""
	}
	switch ch.Type {
	case model.Real:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case model.Integer:
		return strconv.FormatInt(v.Integer, 10)
	case model.Boolean:
		return strconv.FormatBool(v.Boolean)
	case model.String:
		return v.String
	case model.Binary:
		return fmt.Sprintf("%x", v.Binary)
	default:
		return ""
	}
}

func (s *fileStore) Finished() error {
	var firstErr error
	for key, f := range s.files {
		if w, ok := s.writers[key]; ok {
			w.Flush()
			if err := w.Error(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
