package indicator

import "math"

// MACD returns the MACD line (EMA(fast)-EMA(slow)), its signal line
// (EMA of the MACD line) and the histogram (line - signal).
func MACD(values []float64, fast, slow, signal int) (line, signalLine, histogram []float64) {
	n := len(values)
	line = nanSlice(n)
	signalLine = nanSlice(n)
	histogram = nanSlice(n)
	if fast <= 0 || slow <= 0 || signal <= 0 || n == 0 {
		return line, signalLine, histogram
	}

	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)
	for i := 0; i < n; i++ {
		if !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
			line[i] = emaFast[i] - emaSlow[i]
		}
	}

	// сигнальная линия — EMA по определённой части macd-линии
	start := firstDefined(line)
	if start < 0 {
		return line, signalLine, histogram
	}
	sig := EMA(line[start:], signal)
	for i, v := range sig {
		signalLine[start+i] = v
	}
	for i := 0; i < n; i++ {
		if !math.IsNaN(line[i]) && !math.IsNaN(signalLine[i]) {
			histogram[i] = line[i] - signalLine[i]
		}
	}
	return line, signalLine, histogram
}

func firstDefined(values []float64) int {
	for i, v := range values {
		if !math.IsNaN(v) {
			return i
		}
	}
	return -1
}
