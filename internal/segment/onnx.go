package segment

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"path/filepath"
	"sync"

	"github.com/MeKo-Tech/prodshot/internal/models"
	"github.com/MeKo-Tech/prodshot/internal/onnx"
	"github.com/disintegration/imaging"
	onnxrt "github.com/yalue/onnxruntime_go"
)

// ImageNet normalization used by U2-Net style models.
var (
	channelMean = [3]float32{0.485, 0.456, 0.406}
	channelStd  = [3]float32{0.229, 0.224, 0.225}
)

// ONNXSegmenter runs a salient-object model (U2-Net family) through ONNX
// Runtime. The first model output is the saliency map.
type ONNXSegmenter struct {
	session   *onnxrt.DynamicAdvancedSession
	inputSize int
	// The runtime session is not safe for concurrent Run calls.
	mu sync.Mutex
}

// NewONNXSegmenter loads cfg.Model from cfg.ModelsDir.
func NewONNXSegmenter(cfg Config) (*ONNXSegmenter, error) {
	path := models.SegmentationModelPath(cfg.ModelsDir, cfg.Model)
	if err := models.ValidateModelExists(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	size := 320
	if info, ok := models.Lookup(filepath.Base(path)); ok {
		size = info.InputSize
	}

	sess, err := createSession(path, cfg.NumThreads, cfg.GPU)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return &ONNXSegmenter{session: sess, inputSize: size}, nil
}

func (s *ONNXSegmenter) Name() string { return BackendONNX }

// Close releases the ONNX session.
func (s *ONNXSegmenter) Close() error {
	if s == nil || s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

func (s *ONNXSegmenter) Segment(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := s.inputSize
	resized := imaging.Resize(img, n, n, imaging.Lanczos)

	input, err := onnxrt.NewTensor(onnxrt.NewShape(1, 3, int64(n), int64(n)), toCHW(resized))
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer func() { _ = input.Destroy() }()

	outs := []onnxrt.Value{nil}
	s.mu.Lock()
	err = s.session.Run([]onnxrt.Value{input}, outs)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	if outs[0] == nil {
		return nil, errors.New("no output from model")
	}
	defer func() { _ = outs[0].Destroy() }()

	t, ok := outs[0].(*onnxrt.Tensor[float32])
	if !ok {
		return nil, errors.New("invalid output tensor type")
	}
	shape := t.GetShape()
	if len(shape) != 4 || shape[2] <= 0 || shape[3] <= 0 {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	mh, mw := int(shape[2]), int(shape[3])

	mask := maskImage(t.GetData()[:mh*mw], mw, mh)
	b := img.Bounds()
	alpha := imaging.Resize(mask, b.Dx(), b.Dy(), imaging.Linear)

	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		// alpha is grayscale; its red channel holds the opacity.
		out.Pix[i] = min(out.Pix[i], alpha.Pix[i-3])
	}
	return out, nil
}

// toCHW normalizes an NRGBA image into a planar float32 tensor.
func toCHW(img *image.NRGBA) []float32 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	data := make([]float32, 3*w*h)
	for y := range h {
		for x := range w {
			p := img.Pix[y*img.Stride+x*4:]
			for c := range 3 {
				v := float32(p[c]) / 255
				data[c*w*h+y*w+x] = (v - channelMean[c]) / channelStd[c]
			}
		}
	}
	return data
}

// maskImage min-max normalizes a saliency map into a grayscale image.
func maskImage(data []float32, w, h int) *image.NRGBA {
	lo, hi := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, v := range data {
		lo, hi = min(lo, v), max(hi, v)
	}
	scale := float32(0)
	if hi > lo {
		scale = 255 / (hi - lo)
	}
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i, v := range data {
		g := uint8((v - lo) * scale)
		out.Pix[i*4], out.Pix[i*4+1], out.Pix[i*4+2], out.Pix[i*4+3] = g, g, g, 255
	}
	return out
}

func createSession(modelPath string, threads int, gpu onnx.GPUConfig) (*onnxrt.DynamicAdvancedSession, error) {
	if err := onnx.Initialize(gpu.UseGPU); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxrt.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("io info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs))
	}

	opts, err := onnxrt.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session opts: %w", err)
	}
	defer func() { _ = opts.Destroy() }()
	if threads > 0 {
		_ = opts.SetIntraOpNumThreads(threads)
	}
	if err := onnx.ConfigureSessionForGPU(opts, gpu); err != nil {
		slog.Warn("CUDA unavailable, segmenting on CPU", "device", gpu.DeviceID, "error", err)
	}

	sess, err := onnxrt.NewDynamicAdvancedSession(modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	return sess, nil
}
