package main

import (
	"fmt"
	"io"
	"strconv"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/song"
)

// summary is what modinfo prints about a module, in text and YAML form.
type summary struct {
	File         string          `yaml:"file"`
	Format       song.FormatInfo `yaml:"format"`
	Title        string          `yaml:"title"`
	Artist       string          `yaml:"artist,omitempty"`
	Channels     int             `yaml:"channels"`
	Speed        int             `yaml:"speed"`
	Tempo        int             `yaml:"tempo"`
	GlobalVolume int             `yaml:"global_volume"`
	Order        []string        `yaml:"order"`
	Patterns     int             `yaml:"patterns"`
	WithData     int             `yaml:"patterns_with_data"`
	Samples      []sampleSummary `yaml:"samples,omitempty"`
	Instruments  []string        `yaml:"instruments,omitempty"`
	Quirks       song.QuirkSet   `yaml:"quirks,omitempty"`
	Message      string          `yaml:"message,omitempty"`
	Warnings     []string        `yaml:"warnings,omitempty"`
}

type sampleSummary struct {
	Name    string `yaml:"name"`
	Length  int    `yaml:"length"`
	Bits    int    `yaml:"bits"`
	Volume  int    `yaml:"volume"`
	C5Speed uint32 `yaml:"c5_speed"`
	Loop    string `yaml:"loop,omitempty"`
	Adlib   bool   `yaml:"adlib,omitempty"`
}

func orderEntry(p song.PatternIndex) string {
	switch p {
	case song.OrderStop:
		return "---"
	case song.OrderSkip:
		return "+++"
	default:
		return strconv.Itoa(int(p))
	}
}

func newSummary(file string, res *parser.Result) *summary {
	s := res.Song
	sum := &summary{
		File:         file,
		Format:       s.Format,
		Title:        s.Title,
		Artist:       s.Artist,
		Channels:     s.NumChannels(),
		Speed:        s.InitialSpeed,
		Tempo:        s.InitialTempo,
		GlobalVolume: s.InitialGlobalVolume,
		Patterns:     len(s.Patterns),
		Quirks:       s.Quirks,
		Message:      s.Message,
	}
	for _, p := range s.Order {
		sum.Order = append(sum.Order, orderEntry(p))
	}
	for _, p := range s.Patterns {
		if p != nil {
			sum.WithData++
		}
	}
	for _, smp := range s.Samples {
		ss := sampleSummary{
			Name:    smp.Name,
			Length:  smp.Length,
			Bits:    8,
			Volume:  smp.Volume,
			C5Speed: smp.C5Speed,
			Adlib:   smp.AdlibPatch != nil,
		}
		if smp.Is16Bit() {
			ss.Bits = 16
		}
		if smp.Flags&song.SampleLoop != 0 {
			ss.Loop = fmt.Sprintf("%d-%d", smp.LoopStart, smp.LoopEnd)
		}
		sum.Samples = append(sum.Samples, ss)
	}
	for _, ins := range s.Instruments {
		if ins != nil {
			sum.Instruments = append(sum.Instruments, ins.Name)
		}
	}
	for _, w := range res.Warnings {
		sum.Warnings = append(sum.Warnings, w.String())
	}
	return sum
}

const textReport = `{{ .File }}: {{ .Format.Name }}{{ with .Format.Tracker }} ({{ . }}){{ end }}
{{- with .Format.OriginalName }}, converted from {{ . }}{{ end }}
{{ repeat 60 "-" }}
Title:    {{ .Title | default "(untitled)" }}
{{- with .Artist }}
Artist:   {{ . }}{{ end }}
Channels: {{ .Channels }}
Timing:   speed {{ .Speed }}, tempo {{ .Tempo }}, global volume {{ .GlobalVolume }}
Order:    {{ join " " .Order | default "(empty)" }}
Patterns: {{ .Patterns }} ({{ .WithData }} with data)
{{- if .Samples }}
Samples:
{{- range $i, $s := .Samples }}
  {{ add1 $i | printf "%3d" }}. {{ $s.Name | trunc 28 | printf "%-28s" }} {{ printf "%7d" $s.Length }} frames {{ $s.Bits }}-bit
{{- if $s.Adlib }} OPL{{ end }}{{ with $s.Loop }} loop {{ . }}{{ end }}
{{- end }}
{{- end }}
{{- if .Instruments }}
Instruments:
{{- range $i, $name := .Instruments }}
  {{ add1 $i | printf "%3d" }}. {{ $name }}
{{- end }}
{{- end }}
{{- with .Message }}
Message:
{{ indent 2 . }}
{{- end }}
{{- if .Warnings }}
Warnings:
{{- range .Warnings }}
  - {{ . }}
{{- end }}
{{- end }}
`

var reportTemplate = template.Must(template.New("report").Funcs(sprig.TxtFuncMap()).Parse(textReport))

func writeText(w io.Writer, sum *summary) error {
	return errors.Wrap(reportTemplate.Execute(w, sum), "rendering report")
}

func writeYAML(w io.Writer, sum *summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sum); err != nil {
		return errors.Wrap(err, "encoding YAML")
	}
	return enc.Close()
}
