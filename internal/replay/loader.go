package replay

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event is one decoded line of the event log.
type Event struct {
	Tick        uint64
	SimulatedMs int64
	CapturedAt  time.Time
	Type        string
	Payload     json.RawMessage
}

// Frame is one decoded state frame.
type Frame struct {
	Tick        uint64
	SimulatedMs int64
	CapturedAt  time.Time
	State       *structpb.Struct
}

// Bundle is a replay directory loaded into memory.
type Bundle struct {
	Dir      string
	Manifest Manifest
	Header   Header
	Events   []Event
	Frames   []Frame
}

// ReadBundle loads the manifest, header, events and frames stored under dir.
func ReadBundle(dir string) (*Bundle, error) {
	if dir == "" {
		return nil, fmt.Errorf("replay path must be provided")
	}
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if manifest.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", manifest.Version)
	}

	header, err := ReadHeader(filepath.Join(dir, manifest.HeaderPath))
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	events, err := loadEvents(filepath.Join(dir, manifest.EventsPath))
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	frames, err := loadFrames(filepath.Join(dir, manifest.FramesPath))
	if err != nil {
		return nil, fmt.Errorf("read frames: %w", err)
	}
	return &Bundle{Dir: dir, Manifest: manifest, Header: header, Events: events, Frames: frames}, nil
}

// Commands extracts the recorded player commands in recording order.
func (b *Bundle) Commands() ([]Command, error) {
	var commands []Command
	for _, ev := range b.Events {
		if ev.Type != EventCommand {
			continue
		}
		var cmd Command
		if err := json.Unmarshal(ev.Payload, &cmd); err != nil {
			return nil, fmt.Errorf("decode command at tick %d: %w", ev.Tick, err)
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

// EventsOfType filters the event log by type.
func (b *Bundle) EventsOfType(kind string) []Event {
	var out []Event
	for _, ev := range b.Events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

func loadEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var events []Event
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record eventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, err
		}
		captured, err := time.Parse(time.RFC3339Nano, record.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("parse captured_at: %w", err)
		}
		events = append(events, Event{
			Tick:        record.Tick,
			SimulatedMs: record.SimulatedMs,
			CapturedAt:  captured,
			Type:        record.Type,
			Payload:     append(json.RawMessage(nil), record.Payload...),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func loadFrames(path string) ([]Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	var frames []Frame
	header := make([]byte, frameHeader)
	for {
		if _, err := io.ReadFull(decoder, header); err != nil {
			//1.- A clean end of stream, or a stream truncated by a live dump, ends the frame list.
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, err
		}
		tick := binary.LittleEndian.Uint64(header[0:8])
		simulated := int64(binary.LittleEndian.Uint64(header[8:16]))
		captured := time.Unix(0, int64(binary.LittleEndian.Uint64(header[16:24]))).UTC()
		length := binary.LittleEndian.Uint32(header[24:28])
		payload := make([]byte, length)
		if _, err := io.ReadFull(decoder, payload); err != nil {
			return nil, fmt.Errorf("frame %d payload: %w", tick, err)
		}
		state := &structpb.Struct{}
		if err := proto.Unmarshal(payload, state); err != nil {
			return nil, fmt.Errorf("frame %d decode: %w", tick, err)
		}
		frames = append(frames, Frame{Tick: tick, SimulatedMs: simulated, CapturedAt: captured, State: state})
	}
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Tick < frames[j].Tick })
	return frames, nil
}
