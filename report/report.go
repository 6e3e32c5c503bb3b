// Package report renders training results for the evaluate command.
package report

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/heartpredict/pkg/errors"
	"github.com/YuminosukeSato/heartpredict/service"
)

// WriteTable prints one row per model. The serving model is marked with "*".
// Cross-validation columns are added when cv is non-empty.
func WriteTable(w io.Writer, entries []service.ModelEntry, serving string, cv []service.CVScore) {
	cvByName := lo.SliceToMap(cv, func(s service.CVScore) (string, service.CVScore) {
		return s.Name, s
	})

	header := []string{"Model", "Accuracy", "Precision", "Recall", "F1", "Fit time"}
	if len(cv) > 0 {
		header = append(header, "CV accuracy")
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	for _, e := range entries {
		name := e.Name
		if name == serving {
			name += " *"
		}
		row := []string{
			name,
			fmt.Sprintf("%.4f", e.Accuracy),
			fmt.Sprintf("%.4f", e.Precision),
			fmt.Sprintf("%.4f", e.Recall),
			fmt.Sprintf("%.4f", e.F1),
			e.FitTime.String(),
		}
		if len(cv) > 0 {
			if s, ok := cvByName[e.Name]; ok {
				row = append(row, fmt.Sprintf("%.4f ± %.4f", s.Result.Mean(), s.Result.Std()))
			} else {
				row = append(row, "-")
			}
		}
		table.Append(row)
	}
	table.Render()
}

// PlotAccuracy saves a bar chart of holdout accuracies. The image format follows the
// extension of path (png, svg, pdf, ...).
func PlotAccuracy(path string, entries []service.ModelEntry) error {
	if len(entries) == 0 {
		return errors.NewValueError("PlotAccuracy", "no models to plot")
	}

	values := make(plotter.Values, len(entries))
	for i, e := range entries {
		values[i] = e.Accuracy
	}

	p := plot.New()
	p.Title.Text = "Holdout accuracy"
	p.Y.Label.Text = "Accuracy"
	p.Y.Min = 0
	p.Y.Max = 1

	bars, err := plotter.NewBarChart(values, vg.Points(40))
	if err != nil {
		return errors.Wrap(err, "bar chart")
	}
	bars.Color = plotutil.Color(0)
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(lo.Map(entries, func(e service.ModelEntry, _ int) string { return e.Name })...)

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return nil
}
