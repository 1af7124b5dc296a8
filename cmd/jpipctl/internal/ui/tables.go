package ui

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/alexeyco/simpletable"
	"github.com/codeninja55/go-jpip/cmd/jpipctl/internal/config"
	"github.com/codeninja55/go-jpip/jpeg2000"
	"github.com/codeninja55/go-jpip/jpip"
)

// codestreamRow is the JSON-friendly projection of one codestream's shape,
// shared by both the table and JSON renderers so the two formats never
// drift apart.
type codestreamRow struct {
	Index         int    `json:"index"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	NumComponents int    `json:"num_components"`
	NumLevels     int    `json:"num_levels"`
	NumLayers     int    `json:"num_layers"`
	Progression   string `json:"progression"`
	TileParts     int    `json:"tile_parts"`
	PLTMarkers    int    `json:"plt_markers"`
}

// RenderImageIndex prints a summary of idx's shape: one row per codestream
// (or, for a hyperlinked JPX, one row per linked sub-image), in table or
// JSON form per format.
func RenderImageIndex(w io.Writer, idx *jpeg2000.ImageIndex, format config.Format) error {
	rows := collectCodestreamRows(idx)

	if format == config.FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			FileName    string          `json:"file_name"`
			IsJPX       bool            `json:"is_jpx"`
			HyperLinked bool            `json:"hyperlinked"`
			Codestreams []codestreamRow `json:"codestreams"`
		}{
			FileName:    idx.Info.FileName,
			IsJPX:       idx.Info.IsJPX,
			HyperLinked: len(idx.HyperLinks) > 0,
			Codestreams: rows,
		})
	}

	table := simpletable.New()
	table.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "CS"},
			{Align: simpletable.AlignCenter, Text: "SIZE"},
			{Align: simpletable.AlignCenter, Text: "COMPONENTS"},
			{Align: simpletable.AlignCenter, Text: "LEVELS"},
			{Align: simpletable.AlignCenter, Text: "LAYERS"},
			{Align: simpletable.AlignCenter, Text: "PROGRESSION"},
			{Align: simpletable.AlignCenter, Text: "TILE-PARTS"},
			{Align: simpletable.AlignCenter, Text: "PLT MARKERS"},
		},
	}
	for _, row := range rows {
		table.Body.Cells = append(table.Body.Cells, []*simpletable.Cell{
			{Text: fmt.Sprintf("%d", row.Index)},
			{Text: fmt.Sprintf("%dx%d", row.Width, row.Height)},
			{Align: simpletable.AlignRight, Text: fmt.Sprintf("%d", row.NumComponents)},
			{Align: simpletable.AlignRight, Text: fmt.Sprintf("%d", row.NumLevels)},
			{Align: simpletable.AlignRight, Text: fmt.Sprintf("%d", row.NumLayers)},
			{Text: row.Progression},
			{Align: simpletable.AlignRight, Text: fmt.Sprintf("%d", row.TileParts)},
			{Align: simpletable.AlignRight, Text: fmt.Sprintf("%d", row.PLTMarkers)},
		})
	}
	table.SetStyle(simpletable.StyleCompactLite)
	_, err := fmt.Fprintln(w, table.String())
	return err
}

func collectCodestreamRows(idx *jpeg2000.ImageIndex) []codestreamRow {
	if len(idx.HyperLinks) > 0 {
		var rows []codestreamRow
		for _, link := range idx.HyperLinks {
			rows = append(rows, collectCodestreamRows(link)...)
		}
		return rows
	}

	rows := make([]codestreamRow, 0, len(idx.Codestreams))
	for i, cs := range idx.Codestreams {
		rows = append(rows, codestreamRow{
			Index:         i,
			Width:         cs.Params.Size.X,
			Height:        cs.Params.Size.Y,
			NumComponents: cs.Params.NumComponents,
			NumLevels:     cs.Params.NumLevels,
			NumLayers:     cs.Params.NumLayers,
			Progression:   cs.Params.Progression.String(),
			TileParts:     len(cs.Packets),
			PLTMarkers:    len(cs.PLTMarkers),
		})
	}
	return rows
}

// binRow is the JSON-friendly projection of one cache-model counter.
type binRow struct {
	Codestream int    `json:"codestream"`
	Class      string `json:"class"`
	MainHeader string `json:"main_header,omitempty"`
	TileHeader string `json:"tile_header,omitempty"`
	Precincts  int    `json:"precincts_tracked,omitempty"`
}

func binString(v uint32) string {
	const complete = 1<<32 - 1
	if v == complete {
		return "complete"
	}
	return fmt.Sprintf("%d bytes", v)
}

// RenderCacheModel prints, per codestream in the current set, how much of
// its main header and tile header the client is known to hold, plus how
// many distinct precincts the model is tracking.
func RenderCacheModel(w io.Writer, model *jpip.CacheModel, codestreams []int, format config.Format) error {
	rows := make([]binRow, 0, len(codestreams))
	for _, cs := range codestreams {
		tracked := 0
		if cs >= 0 && cs < len(model.Codestreams) {
			tracked = len(model.Codestreams[cs].Precincts)
		}
		rows = append(rows, binRow{
			Codestream: cs,
			MainHeader: binString(model.GetBin(jpip.MainHeaderClass, cs, 0)),
			TileHeader: binString(model.GetBin(jpip.TileHeaderClass, cs, 0)),
			Precincts:  tracked,
		})
	}

	if format == config.FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			FullMeta    bool     `json:"full_metadata"`
			Codestreams []binRow `json:"codestreams"`
		}{FullMeta: model.FullMeta, Codestreams: rows})
	}

	table := simpletable.New()
	table.Header = &simpletable.Header{
		Cells: []*simpletable.Cell{
			{Align: simpletable.AlignCenter, Text: "CS"},
			{Align: simpletable.AlignCenter, Text: "MAIN HEADER"},
			{Align: simpletable.AlignCenter, Text: "TILE HEADER"},
			{Align: simpletable.AlignCenter, Text: "PRECINCTS"},
		},
	}
	for _, row := range rows {
		table.Body.Cells = append(table.Body.Cells, []*simpletable.Cell{
			{Text: fmt.Sprintf("%d", row.Codestream)},
			{Text: row.MainHeader},
			{Text: row.TileHeader},
			{Align: simpletable.AlignRight, Text: fmt.Sprintf("%d", row.Precincts)},
		})
	}
	table.SetStyle(simpletable.StyleCompactLite)
	if _, err := fmt.Fprintf(w, "full metadata cached: %v\n", model.FullMeta); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, table.String())
	return err
}
