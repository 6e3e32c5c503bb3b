package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Estimator は Fit と Predict を持つ教師あり学習モデル
type Estimator interface {
	Fitter
	Predictor
}

// SetParam は value が T 型のときだけ *dst に代入する。型が違えば *dst は変更しない
func SetParam[T any](dst *T, value interface{}) bool {
	v, ok := value.(T)
	if ok {
		*dst = v
	}
	return ok
}
