// Package metrics は分類モデルの評価指標を提供します。
package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartpredict/pkg/errors"
)

// logLossEps は log(0) を避けるためのクリッピング幅
const logLossEps = 1e-15

// checkPair は2つのベクトルが空でなく同じ長さであることを検証する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// columnVector は行列の先頭列をベクトルとして取り出す
func columnVector(op string, m mat.Matrix) (*mat.VecDense, error) {
	if m == nil {
		return nil, errors.NewValueError(op, "nil matrix")
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError(op, "empty matrix")
	}
	if v, ok := m.(*mat.VecDense); ok {
		return v, nil
	}
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, m.At(i, 0))
	}
	return out, nil
}

// Accuracy は正解率（完全一致の割合）を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// AccuracyScore は行列形式の入力（n×1）に対して正解率を計算する。
// Predict の戻り値をそのまま渡せる。
func AccuracyScore(yTrue, yPred mat.Matrix) (float64, error) {
	t, err := columnVector("AccuracyScore", yTrue)
	if err != nil {
		return 0, err
	}
	p, err := columnVector("AccuracyScore", yPred)
	if err != nil {
		return 0, err
	}
	return Accuracy(t, p)
}

// ClassificationError は誤分類率（1 - accuracy）を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// checkBinary はラベルが 0 と 1 のみであることを検証する
func checkBinary(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be binary (0 or 1)")
		}
	}
	return nil
}

// AUC は二値分類の ROC 曲線下面積を計算する。
// yPred は陽性クラスのスコア。同順位は平均順位で扱う（Mann-Whitney U）。
// 片方のクラスしか存在しない場合は定義できないため 0.5 を返す。
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yPred.AtVec(idx[a]) < yPred.AtVec(idx[b])
	})

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && yPred.AtVec(idx[j+1]) == yPred.AtVec(idx[i]) {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}

	var nPos, nNeg int
	var rankSum float64
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == 1 {
			nPos++
			rankSum += ranks[i]
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present in y_true", 0.5))
		return 0.5, nil
	}

	u := rankSum - float64(nPos*(nPos+1))/2
	return u / float64(nPos*nNeg), nil
}

// AUCMatrix は行列形式の入力に対して AUC を計算する（先頭列を使用）
func AUCMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	t, err := columnVector("AUCMatrix", yTrue)
	if err != nil {
		return 0, err
	}
	p, err := columnVector("AUCMatrix", yPred)
	if err != nil {
		return 0, err
	}
	return AUC(t, p)
}

// BinaryLogLoss は二値分類の交差エントロピー損失を計算する
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		p := math.Min(math.Max(yPred.AtVec(i), logLossEps), 1-logLossEps)
		y := yTrue.AtVec(i)
		sum += y*math.Log(p) + (1-y)*math.Log(1-p)
	}
	return -sum / float64(n), nil
}

// ConfusionMatrix は混同行列を計算する。
// 行が真のラベル、列が予測ラベル。labels が nil の場合は両ベクトルに現れる値を昇順で使う。
func ConfusionMatrix(yTrue, yPred *mat.VecDense, labels []int) (*mat.Dense, []int, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, nil, err
	}

	if labels == nil {
		seen := make(map[int]struct{})
		for i := 0; i < n; i++ {
			seen[int(yTrue.AtVec(i))] = struct{}{}
			seen[int(yPred.AtVec(i))] = struct{}{}
		}
		for l := range seen {
			labels = append(labels, l)
		}
		sort.Ints(labels)
	}
	if len(labels) == 0 {
		return nil, nil, errors.NewValueError("ConfusionMatrix", "labels must not be empty")
	}

	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}

	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := 0; i < n; i++ {
		ti, okT := pos[int(yTrue.AtVec(i))]
		pi, okP := pos[int(yPred.AtVec(i))]
		if !okT || !okP {
			continue
		}
		cm.Set(ti, pi, cm.At(ti, pi)+1)
	}
	return cm, labels, nil
}

// binaryCounts は posLabel を陽性とした TP, FP, FN を数える
func binaryCounts(yTrue, yPred *mat.VecDense, n int, posLabel float64) (tp, fp, fn float64) {
	for i := 0; i < n; i++ {
		t := yTrue.AtVec(i) == posLabel
		p := yPred.AtVec(i) == posLabel
		switch {
		case t && p:
			tp++
		case !t && p:
			fp++
		case t && !p:
			fn++
		}
	}
	return tp, fp, fn
}

// PrecisionScore は陽性ラベル posLabel に対する適合率を計算する。
// 陽性予測が 0 件の場合は 0 を返し UndefinedMetricWarning を発生させる。
func PrecisionScore(yTrue, yPred *mat.VecDense, posLabel int) (float64, error) {
	n, err := checkPair("PrecisionScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	tp, fp, _ := binaryCounts(yTrue, yPred, n, float64(posLabel))
	if tp+fp == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted samples", 0))
		return 0, nil
	}
	return tp / (tp + fp), nil
}

// RecallScore は陽性ラベル posLabel に対する再現率を計算する。
func RecallScore(yTrue, yPred *mat.VecDense, posLabel int) (float64, error) {
	n, err := checkPair("RecallScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	tp, _, fn := binaryCounts(yTrue, yPred, n, float64(posLabel))
	if tp+fn == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("recall", "no true samples", 0))
		return 0, nil
	}
	return tp / (tp + fn), nil
}

// F1Score は適合率と再現率の調和平均を計算する。
func F1Score(yTrue, yPred *mat.VecDense, posLabel int) (float64, error) {
	n, err := checkPair("F1Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	tp, fp, fn := binaryCounts(yTrue, yPred, n, float64(posLabel))
	denom := 2*tp + fp + fn
	if denom == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("f1", "no true nor predicted samples", 0))
		return 0, nil
	}
	return 2 * tp / denom, nil
}
