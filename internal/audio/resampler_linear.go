package audio

import "fmt"

// Resampler 采样率转换
type Resampler interface {
	Resample(input []float32, inputRate, outputRate, channels int) ([]float32, error)
}

// LinearResampler 线性插值重采样器，播放时对齐设备采样率，转写文件时对齐采集采样率
type LinearResampler struct{}

func NewLinearResampler() *LinearResampler {
	return &LinearResampler{}
}

// Resample 使用线性插值进行重采样
//
//	ratio = inputRate / outputRate
//	position = outputIndex * ratio
//	output[outputIndex] = input[i] * (1 - frac) + input[i+1] * frac
func (r *LinearResampler) Resample(input []float32, inputRate, outputRate, channels int) ([]float32, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: input=%d, output=%d", inputRate, outputRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channels: %d", channels)
	}
	if len(input) == 0 {
		return []float32{}, nil
	}

	if inputRate == outputRate {
		result := make([]float32, len(input))
		copy(result, input)
		return result, nil
	}

	inputFrames := len(input) / channels
	if inputFrames == 0 {
		return []float32{}, nil
	}

	ratio := float64(inputRate) / float64(outputRate)
	outputFrames := (inputFrames*outputRate + inputRate - 1) / inputRate
	output := make([]float32, outputFrames*channels)

	for outFrame := 0; outFrame < outputFrames; outFrame++ {
		position := float64(outFrame) * ratio
		inFrame := int(position)
		frac := position - float64(inFrame)

		if inFrame >= inputFrames-1 {
			inFrame = inputFrames - 1
			frac = 0
		}

		for ch := 0; ch < channels; ch++ {
			idx1 := inFrame*channels + ch
			idx2 := idx1
			if inFrame+1 < inputFrames {
				idx2 = (inFrame+1)*channels + ch
			}
			s1 := float64(input[idx1])
			s2 := float64(input[idx2])
			output[outFrame*channels+ch] = clip(s1*(1-frac) + s2*frac)
		}
	}

	return output, nil
}
