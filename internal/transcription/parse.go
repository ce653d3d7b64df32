package transcription

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"gitlab.com/gomidi/midi/v2/smf"

	"chartsmith/internal/chart"
)

// parseNoteCSV reads the transcription tool's note-event CSV:
// start_time_s,end_time_s,pitch_midi,velocity. Velocity is normalized to
// [0,1] and doubles as the note's confidence, the strongest signal the
// tool exposes per note.
func parseNoteCSV(path string) ([]chart.Note, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var notes []chart.Note
	for i, record := range records {
		if len(record) < 4 {
			return nil, fmt.Errorf("row %d: expected at least 4 columns, got %d", i, len(record))
		}
		start, err := strconv.ParseFloat(record[0], 64)
		if err != nil {
			if i == 0 {
				// header row
				continue
			}
			return nil, fmt.Errorf("row %d: bad start time %q", i, record[0])
		}
		end, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad end time %q", i, record[1])
		}
		pitch, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad pitch %q", i, record[2])
		}
		velocity, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad velocity %q", i, record[3])
		}
		if velocity > 1 {
			velocity /= 127
		}
		durationMs := int((end - start) * 1000)
		if durationMs < 1 {
			durationMs = 1
		}
		notes = append(notes, chart.Note{
			TimeMs:     int(start * 1000),
			DurationMs: durationMs,
			Pitch:      int(pitch),
			Velocity:   velocity,
			Confidence: velocity,
		})
	}
	return notes, nil
}

// parseNoteMIDI reads the fallback MIDI output, flattening every track.
func parseNoteMIDI(path string) ([]chart.Note, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := smf.ReadFrom(file)
	if err != nil {
		return nil, err
	}
	ticks, ok := data.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("unsupported time format %v", data.TimeFormat)
	}

	bpm := 120.0
	for _, track := range data.Tracks {
		for _, event := range track {
			var tempo float64
			if event.Message.GetMetaTempo(&tempo) && tempo > 0 {
				bpm = tempo
				break
			}
		}
	}

	var notes []chart.Note
	for _, track := range data.Tracks {
		type openNote struct {
			tick     uint64
			velocity uint8
		}
		open := make(map[uint8][]openNote)
		var absTick uint64
		for _, event := range track {
			absTick += uint64(event.Delta)
			var channel, key, velocity uint8
			if event.Message.GetNoteStart(&channel, &key, &velocity) {
				open[key] = append(open[key], openNote{tick: absTick, velocity: velocity})
				continue
			}
			if event.Message.GetNoteEnd(&channel, &key) {
				pending := open[key]
				if len(pending) == 0 {
					continue
				}
				started := pending[len(pending)-1]
				open[key] = pending[:len(pending)-1]
				durationMs := int(ticks.Duration(bpm, uint32(absTick-started.tick)).Milliseconds())
				if durationMs < 1 {
					durationMs = 1
				}
				normalized := float64(started.velocity) / 127
				notes = append(notes, chart.Note{
					TimeMs:     int(ticks.Duration(bpm, uint32(started.tick)).Milliseconds()),
					DurationMs: durationMs,
					Pitch:      int(key),
					Velocity:   normalized,
					Confidence: normalized,
				})
			}
		}
	}
	return notes, nil
}
