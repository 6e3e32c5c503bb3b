// Package dataset loads the tabular training data and describes its schema.
//
// A dataset is a CSV file with a header row. One column holds the integer
// class label; every other column, in file order, is a numeric feature.
// The resulting Schema fixes the shape that prediction requests must match.
package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartpredict/pkg/errors"
)

// DefaultLabel is the label column of the heart-disease dataset.
const DefaultLabel = "target"

// Dataset is the in-memory training data. It is not modified after loading.
type Dataset struct {
	Schema Schema
	// X は n × p の特徴量行列
	X *mat.Dense
	// Y は行に対応するクラスラベル
	Y *mat.VecDense
}

// NSamples returns the number of rows.
func (d *Dataset) NSamples() int {
	r, _ := d.X.Dims()
	return r
}

// NFeatures returns the number of feature columns.
func (d *Dataset) NFeatures() int {
	return len(d.Schema.Features)
}

// LoadCSV reads the dataset at path. label names the class column.
func LoadCSV(path, label string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open dataset %s", path)
	}
	defer f.Close()

	ds, err := ReadCSV(f, label)
	if err != nil {
		return nil, errors.Wrapf(err, "load dataset %s", path)
	}
	return ds, nil
}

// ReadCSV parses a dataset from r.
func ReadCSV(r io.Reader, label string) (*Dataset, error) {
	if label == "" {
		label = DefaultLabel
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.Wrap(errors.ErrEmptyData, "missing header row")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	// UTF-8 BOM written by spreadsheet exports
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	labelCol := -1
	features := make([]string, 0, len(header)-1)
	for i, name := range header {
		if name == label {
			if labelCol >= 0 {
				return nil, errors.NewValueError("ReadCSV", "duplicate column '"+label+"'")
			}
			labelCol = i
			continue
		}
		features = append(features, name)
	}
	if labelCol < 0 {
		return nil, errors.NewValueError("ReadCSV", "header has no label column '"+label+"'")
	}
	schema, err := NewSchema(features, label)
	if err != nil {
		return nil, err
	}

	rows, err := reader.ReadAll()
	if err != nil {
		// csv.ParseError carries the line number and covers wrong field counts.
		return nil, errors.Wrap(err, "read rows")
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset has no data rows")
	}

	p := len(features)
	xData := make([]float64, 0, len(rows)*p)
	yData := make([]float64, len(rows))
	for i, row := range rows {
		line := i + 2
		for j, cell := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, errors.NewValueError("ReadCSV",
					"line "+strconv.Itoa(line)+": column '"+header[j]+"': not a number: '"+cell+"'")
			}
			if j == labelCol {
				if v != math.Trunc(v) {
					return nil, errors.NewValueError("ReadCSV",
						"line "+strconv.Itoa(line)+": label must be an integer class, got "+cell)
				}
				yData[i] = v
				continue
			}
			xData = append(xData, v)
		}
	}

	X := mat.NewDense(len(rows), p, xData)
	if err := errors.CheckMatrix("csv_parse", X, len(rows), p); err != nil {
		return nil, err
	}
	if err := errors.CheckNumericalStability("csv_parse", yData, 0); err != nil {
		return nil, err
	}

	return &Dataset{
		Schema: schema,
		X:      X,
		Y:      mat.NewVecDense(len(rows), yData),
	}, nil
}
