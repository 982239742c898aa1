package prosody

import (
	"math"
	"math/cmplx"
	"sort"
)

// fft is an in-place iterative radix-2 transform. len(x) must be a power of two.
func fft(x []complex128) {
	n := len(x)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		step := -2 * math.Pi / float64(size)
		wn := cmplx.Rect(1, step)
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			half := size / 2
			for k := 0; k < half; k++ {
				u := x[start+k]
				v := x[start+k+half] * w
				x[start+k] = u + v
				x[start+k+half] = u - v
				w *= wn
			}
		}
	}
}

func ifft(x []complex128) {
	for i := range x {
		x[i] = cmplx.Conj(x[i])
	}
	fft(x)
	n := complex(float64(len(x)), 0)
	for i := range x {
		x[i] = cmplx.Conj(x[i]) / n
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// frameStarts returns the offset of every full frame.
func frameStarts(n, frameLen, hop int) []int {
	if n < frameLen {
		return nil
	}
	count := 1 + (n-frameLen)/hop
	out := make([]int, count)
	for i := range out {
		out[i] = i * hop
	}
	return out
}

// frameRMS computes root-mean-square energy per frame.
func frameRMS(x []float64, frameLen, hop int) []float64 {
	starts := frameStarts(len(x), frameLen, hop)
	out := make([]float64, len(starts))
	for i, s := range starts {
		var e float64
		for _, v := range x[s : s+frameLen] {
			e += v * v
		}
		out[i] = math.Sqrt(e / float64(frameLen))
	}
	return out
}

// stft returns magnitude spectra (frames x nfft/2+1) of Hann-windowed frames.
func stft(x []float64, nfft, hop int) [][]float64 {
	starts := frameStarts(len(x), nfft, hop)
	win := hann(nfft)
	bins := nfft/2 + 1
	out := make([][]float64, len(starts))
	buf := make([]complex128, nfft)
	for i, s := range starts {
		for k := 0; k < nfft; k++ {
			buf[k] = complex(x[s+k]*win[k], 0)
		}
		fft(buf)
		row := make([]float64, bins)
		for k := 0; k < bins; k++ {
			row[k] = cmplx.Abs(buf[k])
		}
		out[i] = row
	}
	return out
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	c := append([]float64(nil), xs...)
	sort.Float64s(c)
	m := len(c) / 2
	if len(c)%2 == 1 {
		return c[m]
	}
	return (c[m-1] + c[m]) / 2
}

// medianFilter1D applies a centred median with edge truncation.
func medianFilter1D(xs []float64, kernel int) []float64 {
	half := kernel / 2
	out := make([]float64, len(xs))
	win := make([]float64, 0, kernel)
	for i := range xs {
		lo, hi := i-half, i+half+1
		if lo < 0 {
			lo = 0
		}
		if hi > len(xs) {
			hi = len(xs)
		}
		win = append(win[:0], xs[lo:hi]...)
		sort.Float64s(win)
		out[i] = win[len(win)/2]
	}
	return out
}
