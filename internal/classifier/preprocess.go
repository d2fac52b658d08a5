package classifier

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ImageNet channel statistics, RGB order.
var (
	channelMean = [3]float32{0.485, 0.456, 0.406}
	channelStd  = [3]float32{0.229, 0.224, 0.225}
)

// Preprocess resizes a BGR image to size x size, converts it to RGB, scales
// to [0,1] and normalises each channel. The result is a 1x3xSxS tensor in
// row-major NCHW order.
func Preprocess(bgr gocv.Mat, size int) ([]float32, error) {
	if bgr.Empty() {
		return nil, fmt.Errorf("empty image")
	}
	if bgr.Channels() != 3 {
		return nil, fmt.Errorf("expected 3 channels, got %d", bgr.Channels())
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(bgr, &resized, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)

	pix := rgb.ToBytes()
	plane := size * size
	if len(pix) != 3*plane {
		return nil, fmt.Errorf("unexpected pixel buffer length %d", len(pix))
	}

	tensor := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		for c := 0; c < 3; c++ {
			v := float32(pix[i*3+c]) / 255
			tensor[c*plane+i] = (v - channelMean[c]) / channelStd[c]
		}
	}
	return tensor, nil
}
