package indicator

// Regression is an ordinary least-squares fit of values against x = 0..n-1.
type Regression struct {
	Slope     float64
	Intercept float64
	R2        float64 // coefficient of determination; 0 when undefined
}

// At evaluates the fitted line at x.
func (r Regression) At(x float64) float64 {
	return r.Intercept + r.Slope*x
}

// LinearRegression fits values against their index. With fewer than two
// values the line is flat through the last value.
func LinearRegression(values []float64) Regression {
	n := len(values)
	if n < 2 {
		return Regression{Intercept: last(values)}
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	den := fn*sumXX - sumX*sumX
	slope := (fn*sumXY - sumX*sumY) / den
	intercept := (sumY - slope*sumX) / fn

	mean := sumY / fn
	var ssTot, ssRes float64
	for i, y := range values {
		fit := intercept + slope*float64(i)
		ssTot += (y - mean) * (y - mean)
		ssRes += (y - fit) * (y - fit)
	}
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
		if r2 < 0 {
			r2 = 0
		}
	}
	return Regression{Slope: slope, Intercept: intercept, R2: r2}
}
