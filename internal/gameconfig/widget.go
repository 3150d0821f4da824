package gameconfig

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Widget is the kind of editing control a configuration entry gets.
type Widget string

const (
	WidgetSlider   Widget = "slider"   // volume or gain, bounded to [0,1]
	WidgetWaveform Widget = "waveform" // oscillator type
	WidgetNumber   Widget = "number"
	WidgetToggle   Widget = "toggle"
	WidgetColor    Widget = "color"
	WidgetText     Widget = "text"
	WidgetJSON     Widget = "json"
)

// Slider bounds.
const (
	SliderMin  = 0.0
	SliderMax  = 1.0
	SliderStep = 0.05
)

// Waveforms are the oscillator types a waveform entry can take.
var Waveforms = []string{"sine", "square", "sawtooth", "triangle"}

// Group partitions entries for presentation only.
type Group string

const (
	GroupSound   Group = "sound"
	GroupGeneral Group = "general"
)

// ErrInvalidInput is returned by ParseInput for text the widget rejects.
var ErrInvalidInput = errors.New("invalid input")

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// InferWidget picks the editing control for a key from its name and value.
func InferWidget(key string, v any) Widget {
	name := strings.ToLower(key)
	switch x := v.(type) {
	case float64:
		if strings.Contains(name, "volume") || strings.Contains(name, "gain") {
			return WidgetSlider
		}
		return WidgetNumber
	case bool:
		return WidgetToggle
	case string:
		if strings.Contains(name, "type") && (strings.Contains(name, "sound") || strings.Contains(name, "wave")) {
			return WidgetWaveform
		}
		if hexColor.MatchString(x) {
			return WidgetColor
		}
		return WidgetText
	default:
		return WidgetJSON
	}
}

// GroupOf reports whether a key belongs with the sound settings.
func GroupOf(key string) Group {
	name := strings.ToLower(key)
	for _, word := range []string{"sound", "music", "volume", "audio"} {
		if strings.Contains(name, word) {
			return GroupSound
		}
	}
	return GroupGeneral
}

// Entry is one configuration key prepared for editing.
type Entry struct {
	Key    string
	Value  any
	Widget Widget
	Group  Group
}

// Entries lists the top-level keys of obj in source order.
func Entries(obj *Object) []Entry {
	if obj == nil {
		return nil
	}
	entries := make([]Entry, 0, obj.Len())
	for _, k := range obj.keys {
		v := obj.values[k]
		entries = append(entries, Entry{
			Key:    k,
			Value:  v,
			Widget: InferWidget(k, v),
			Group:  GroupOf(k),
		})
	}
	return entries
}

// Partition splits entries into sound and general groups, keeping order.
func Partition(entries []Entry) (sound, general []Entry) {
	for _, e := range entries {
		if e.Group == GroupSound {
			sound = append(sound, e)
		} else {
			general = append(general, e)
		}
	}
	return sound, general
}

// Display renders the current value the way the editor shows it.
func (e Entry) Display() string {
	switch e.Widget {
	case WidgetSlider:
		v, _ := e.Value.(float64)
		return fmt.Sprintf("%d%%", int(math.Round(v*100)))
	case WidgetText, WidgetColor, WidgetWaveform:
		s, _ := e.Value.(string)
		return s
	default:
		return Compact(e.Value)
	}
}

// ParseInput converts typed text into a value for the entry's widget.
func ParseInput(e Entry, text string) (any, error) {
	raw := text
	text = strings.TrimSpace(text)
	switch e.Widget {
	case WidgetSlider:
		v, err := parseFinite(strings.TrimSuffix(text, "%"))
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(text, "%") {
			v /= 100
		}
		v = math.Round(v/SliderStep) * SliderStep
		v = math.Max(SliderMin, math.Min(SliderMax, v))
		return math.Round(v*100) / 100, nil
	case WidgetNumber:
		return parseFinite(text)
	case WidgetToggle:
		switch strings.ToLower(text) {
		case "true", "on", "yes", "1":
			return true, nil
		case "false", "off", "no", "0":
			return false, nil
		}
		return nil, fmt.Errorf("%w: %q is not on/off", ErrInvalidInput, text)
	case WidgetWaveform:
		w := strings.ToLower(text)
		for _, known := range Waveforms {
			if w == known {
				return w, nil
			}
		}
		return nil, fmt.Errorf("%w: waveform must be one of %s", ErrInvalidInput, strings.Join(Waveforms, ", "))
	case WidgetColor:
		if !hexColor.MatchString(text) {
			return nil, fmt.Errorf("%w: %q is not a hex color", ErrInvalidInput, text)
		}
		return text, nil
	case WidgetText:
		return raw, nil
	default:
		v, err := ParseValue(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return v, nil
	}
}

func parseFinite(text string) (float64, error) {
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidInput, text)
	}
	return v, nil
}
