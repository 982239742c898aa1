package prosody

import (
	"errors"
	"math"
	"math/cmplx"
	"sort"

	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/utils"
)

const (
	nfft = 2048
	hop  = 512

	vadFrameSec = 0.025
	vadHopSec   = 0.010

	minPitchHz = 75.0
	maxPitchHz = 400.0

	melBands     = 128
	contrastFmin = 200.0
	contrastBand = 6
	hpssKernel   = 17

	referenceWPM = 150.0
)

var (
	ErrTooShort = errors.New("prosody: audio shorter than one analysis frame")
	ErrSilent   = errors.New("prosody: audio is silent")
)

// Extract computes the full prosody vector for mono samples at sampleRate.
func Extract(x []float64, sampleRate int) (models.ProsodyVector, error) {
	if sampleRate <= 0 || len(x) < nfft {
		return models.ProsodyVector{}, ErrTooShort
	}
	var peak float64
	for _, s := range x {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak < 1e-6 {
		return models.ProsodyVector{}, ErrSilent
	}

	sr := float64(sampleRate)
	var v models.ProsodyVector

	rms := frameRMS(x, nfft, hop)
	v.RMSMean = utils.Mean(rms)
	v.RMSStd = utils.Std(rms)
	v.VolumeConsistency = math.Max(0, 1-math.Min(1, v.RMSStd/(v.RMSMean+1e-8)))

	v.PitchMean, v.PitchStd, v.PitchRange = pitchTrack(x, sr, rms)

	spec := stft(x, nfft, hop)
	centroids := make([]float64, 0, len(spec))
	rolloffs := make([]float64, 0, len(spec))
	contrasts := make([]float64, 0, len(spec))
	for _, frame := range spec {
		c, ok := centroid(frame, sr)
		if !ok {
			continue
		}
		centroids = append(centroids, c)
		rolloffs = append(rolloffs, rolloff(frame, sr, 0.85))
		contrasts = append(contrasts, contrast(frame, sr))
	}
	v.SpectralCentroidMean = utils.Mean(centroids)
	v.SpectralCentroidStd = utils.Std(centroids)
	v.SpectralRolloffMean = utils.Mean(rolloffs)
	v.SpectralContrastMean = utils.Mean(contrasts)

	zcr := zeroCrossings(x, nfft, hop)
	v.ZCRMean = utils.Mean(zcr)
	v.ZCRStd = utils.Std(zcr)

	v.MFCCMean = mfccMean(spec, sr)
	v.HarmonicRatio = harmonicRatio(spec)

	abs := make([]float64, len(x))
	for i, s := range x {
		abs[i] = math.Abs(s)
	}
	v.AmplitudeVariation = utils.Std(abs)
	v.EmotionalIntensity = v.AmplitudeVariation * v.HarmonicRatio

	v.Tempo = tempo(spec, sr)
	speechPatterns(x, sr, &v)
	return v, nil
}

// pitchTrack estimates F0 per voiced frame by normalised autocorrelation.
func pitchTrack(x []float64, sr float64, rms []float64) (mean, std, rng float64) {
	gate := 0.3 * utils.Mean(rms)
	minLag := int(math.Floor(sr / maxPitchHz))
	maxLag := int(math.Ceil(sr / minPitchHz))
	if maxLag >= nfft-1 {
		maxLag = nfft - 2
	}
	size := nextPow2(2 * nfft)
	buf := make([]complex128, size)

	var f0s []float64
	for i, s := range frameStarts(len(x), nfft, hop) {
		if i >= len(rms) || rms[i] <= gate {
			continue
		}
		frame := x[s : s+nfft]
		m := utils.Mean(frame)
		for k := range buf {
			buf[k] = 0
		}
		for k, val := range frame {
			buf[k] = complex(val-m, 0)
		}
		fft(buf)
		for k := range buf {
			a := cmplx.Abs(buf[k])
			buf[k] = complex(a*a, 0)
		}
		ifft(buf)

		r0 := real(buf[0])
		if r0 <= 0 {
			continue
		}
		// unbiased, normalised autocorrelation over the search range
		norm := make([]float64, maxLag+2)
		best := 0.0
		for lag := minLag; lag <= maxLag+1; lag++ {
			norm[lag] = real(buf[lag]) / r0 * float64(nfft) / float64(nfft-lag)
			if lag <= maxLag && norm[lag] > best {
				best = norm[lag]
			}
		}
		if best <= 0.3 {
			continue
		}
		// first peak close to the global maximum avoids octave errors
		pick := -1
		for lag := minLag + 1; lag <= maxLag; lag++ {
			if norm[lag] >= 0.9*best && norm[lag] >= norm[lag-1] && norm[lag] >= norm[lag+1] {
				pick = lag
				break
			}
		}
		if pick < 0 {
			continue
		}
		lag := float64(pick)
		a, b, c := norm[pick-1], norm[pick], norm[pick+1]
		if den := a - 2*b + c; den != 0 {
			lag += 0.5 * (a - c) / den
		}
		if lag > 0 {
			f0s = append(f0s, sr/lag)
		}
	}
	if len(f0s) == 0 {
		return 0, 0, 0
	}
	lo, hi := f0s[0], f0s[0]
	for _, f := range f0s {
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	return utils.Mean(f0s), utils.Std(f0s), hi - lo
}

func binHz(k int, sr float64) float64 { return float64(k) * sr / nfft }

func centroid(frame []float64, sr float64) (float64, bool) {
	var num, den float64
	for k, m := range frame {
		num += binHz(k, sr) * m
		den += m
	}
	if den <= 0 {
		return 0, false
	}
	return num / den, true
}

func rolloff(frame []float64, sr float64, pct float64) float64 {
	var total float64
	for _, m := range frame {
		total += m
	}
	var acc float64
	for k, m := range frame {
		acc += m
		if acc >= pct*total {
			return binHz(k, sr)
		}
	}
	return binHz(len(frame)-1, sr)
}

// contrast is the mean peak-to-valley difference in dB over octave bands
// starting at contrastFmin, using the top and bottom 2% of each band.
func contrast(frame []float64, sr float64) float64 {
	edges := []float64{0}
	for i := 0; i <= contrastBand; i++ {
		edges = append(edges, contrastFmin*math.Pow(2, float64(i)))
	}
	edges[len(edges)-1] = sr / 2

	var diffs []float64
	for b := 0; b+1 < len(edges); b++ {
		var band []float64
		for k, m := range frame {
			f := binHz(k, sr)
			if f >= edges[b] && (f < edges[b+1] || (b+2 == len(edges) && f <= edges[b+1])) {
				band = append(band, m)
			}
		}
		if len(band) == 0 {
			continue
		}
		sorted := append([]float64(nil), band...)
		sort.Float64s(sorted)
		n := int(math.Max(1, math.Round(0.02*float64(len(sorted)))))
		valley := utils.Mean(sorted[:n])
		peak := utils.Mean(sorted[len(sorted)-n:])
		diffs = append(diffs, toDB(peak)-toDB(valley))
	}
	return utils.Mean(diffs)
}

func toDB(v float64) float64 { return 10 * math.Log10(math.Max(v, 1e-10)) }

func zeroCrossings(x []float64, frameLen, hopLen int) []float64 {
	starts := frameStarts(len(x), frameLen, hopLen)
	out := make([]float64, len(starts))
	for i, s := range starts {
		var n int
		for k := s + 1; k < s+frameLen; k++ {
			if (x[k] >= 0) != (x[k-1] >= 0) {
				n++
			}
		}
		out[i] = float64(n) / float64(frameLen)
	}
	return out
}

func hzToMel(f float64) float64 { return 2595 * math.Log10(1+f/700) }
func melToHz(m float64) float64 { return 700 * (math.Pow(10, m/2595) - 1) }

// melFilters builds a triangular filterbank spanning 0..sr/2.
func melFilters(sr float64, bands, bins int) [][]float64 {
	lo, hi := hzToMel(0), hzToMel(sr/2)
	pts := make([]float64, bands+2)
	for i := range pts {
		pts[i] = melToHz(lo + (hi-lo)*float64(i)/float64(bands+1))
	}
	fb := make([][]float64, bands)
	for m := 0; m < bands; m++ {
		left, center, right := pts[m], pts[m+1], pts[m+2]
		row := make([]float64, bins)
		for k := 0; k < bins; k++ {
			f := binHz(k, sr)
			switch {
			case f > left && f <= center && center > left:
				row[k] = (f - left) / (center - left)
			case f > center && f < right && right > center:
				row[k] = (right - f) / (right - center)
			}
		}
		fb[m] = row
	}
	return fb
}

// mfccMean returns the first MFCCCount cepstral coefficients averaged over frames.
func mfccMean(spec [][]float64, sr float64) []float64 {
	out := make([]float64, models.MFCCCount)
	if len(spec) == 0 {
		return out
	}
	fb := melFilters(sr, melBands, len(spec[0]))

	logMel := make([][]float64, len(spec))
	top := math.Inf(-1)
	for t, frame := range spec {
		row := make([]float64, melBands)
		for m, filt := range fb {
			var e float64
			for k, w := range filt {
				if w != 0 {
					e += w * frame[k] * frame[k]
				}
			}
			row[m] = toDB(e)
			top = math.Max(top, row[m])
		}
		logMel[t] = row
	}
	floor := top - 80
	for _, row := range logMel {
		for m := range row {
			row[m] = math.Max(row[m], floor)
		}
		c := dctOrtho(row, models.MFCCCount)
		for i := range out {
			out[i] += c[i]
		}
	}
	for i := range out {
		out[i] /= float64(len(logMel))
	}
	return out
}

// dctOrtho computes the first n type-II DCT coefficients with orthonormal scaling.
func dctOrtho(x []float64, n int) []float64 {
	N := float64(len(x))
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var s float64
		for k, v := range x {
			s += v * math.Cos(math.Pi*float64(i)*(2*float64(k)+1)/(2*N))
		}
		scale := math.Sqrt(2 / N)
		if i == 0 {
			scale = math.Sqrt(1 / N)
		}
		out[i] = s * scale
	}
	return out
}

// harmonicRatio separates harmonic from percussive energy with median filters
// along time and frequency and returns the harmonic share of magnitude.
func harmonicRatio(spec [][]float64) float64 {
	if len(spec) == 0 {
		return 0
	}
	frames, bins := len(spec), len(spec[0])

	harm := make([][]float64, frames)
	for t := range harm {
		harm[t] = make([]float64, bins)
	}
	col := make([]float64, frames)
	for k := 0; k < bins; k++ {
		for t := 0; t < frames; t++ {
			col[t] = spec[t][k]
		}
		filtered := medianFilter1D(col, hpssKernel)
		for t := 0; t < frames; t++ {
			harm[t][k] = filtered[t]
		}
	}

	var hSum, total float64
	for t, frame := range spec {
		perc := medianFilter1D(frame, hpssKernel)
		for k, m := range frame {
			h2 := harm[t][k] * harm[t][k]
			p2 := perc[k] * perc[k]
			mask := 0.5
			if h2+p2 > 0 {
				mask = h2 / (h2 + p2)
			}
			hSum += mask * m
			total += m
		}
	}
	if total <= 0 {
		return 0
	}
	return utils.Clamp(hSum/total, 0, 1)
}

// tempo picks the onset-autocorrelation period nearest a 120 BPM prior.
func tempo(spec [][]float64, sr float64) float64 {
	const fallback = 120.0
	if len(spec) < 3 {
		return fallback
	}
	db := make([][]float64, len(spec))
	top := math.Inf(-1)
	for t, frame := range spec {
		row := make([]float64, len(frame))
		for k, m := range frame {
			row[k] = 20 * math.Log10(m+1e-10)
			top = math.Max(top, row[k])
		}
		db[t] = row
	}
	env := make([]float64, len(db))
	var energy float64
	for t := 1; t < len(db); t++ {
		var s float64
		for k := range db[t] {
			cur := math.Max(db[t][k], top-80)
			prev := math.Max(db[t-1][k], top-80)
			if d := cur - prev; d > 0 {
				s += d
			}
		}
		env[t] = s / float64(len(db[t]))
		energy += env[t]
	}
	if energy <= 0 {
		return fallback
	}
	m := utils.Mean(env)
	for i := range env {
		env[i] -= m
	}

	fps := sr / hop
	best, bestBPM := math.Inf(-1), fallback
	for bpm := 30.0; bpm <= 300; bpm += 0.5 {
		lag := int(math.Round(60 * fps / bpm))
		if lag < 1 || lag >= len(env) {
			continue
		}
		var ac float64
		for i := lag; i < len(env); i++ {
			ac += env[i] * env[i-lag]
		}
		ac /= float64(len(env) - lag)
		prior := math.Exp(-0.5 * math.Pow(math.Log2(bpm/120), 2))
		if score := ac * prior; score > best {
			best, bestBPM = score, bpm
		}
	}
	if best <= 0 {
		return fallback
	}
	return bestBPM
}

// speechPatterns fills the VAD-derived fields from 25ms/10ms energy frames.
func speechPatterns(x []float64, sr float64, v *models.ProsodyVector) {
	frameLen := int(vadFrameSec * sr)
	hopLen := int(vadHopSec * sr)
	energy := frameRMS(x, frameLen, hopLen)
	if len(energy) == 0 {
		return
	}
	mean := utils.Mean(energy)

	var voicedEnergy, pauses []float64
	var silent, run int
	for _, e := range energy {
		if e < 0.1*mean {
			silent++
		}
		if e > 0.3*mean {
			voicedEnergy = append(voicedEnergy, e)
			if run > 0 {
				pauses = append(pauses, float64(run)*vadHopSec)
				run = 0
			}
			continue
		}
		run++
	}

	total := float64(len(energy))
	duration := float64(len(x)) / sr
	v.SpeechRatio = float64(len(voicedEnergy)) / total
	v.FluencyScore = math.Max(0, 1-math.Min(1, 2*float64(silent)/total))
	v.AvgSilenceLength = utils.Mean(pauses)
	v.SilenceVariation = utils.Std(pauses)
	v.SpeakingRateVariation = utils.Std(voicedEnergy)
	if duration > 0 {
		v.PauseFrequency = float64(len(pauses)) / duration
	}
	speechSec := float64(len(voicedEnergy)) * vadHopSec
	v.SpeakingRateWPM = utils.Clamp(speechSec/60*referenceWPM, 60, 200)
}
