package middleware

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
	"github.com/saiset-co/sai-pipeline/utils"
)

const (
	AlgorithmGzip    = "gzip"
	AlgorithmDeflate = "deflate"
	AlgorithmBrotli  = "br"
)

type CompressionConfig struct {
	Level        int      `json:"level"`
	Threshold    int      `json:"threshold"`
	AllowedTypes []string `json:"allowed_types"`
}

// CompressionMiddleware compresses the response after the inner chain
// produced it, picking the best algorithm the client accepts.
type CompressionMiddleware struct {
	logger            types.Logger
	metrics           types.MetricsManager
	compressionConfig *CompressionConfig
	gzipWriterPool    sync.Pool
	deflateWriterPool sync.Pool
	brotliWriterPool  sync.Pool
	bufferPool        sync.Pool
}

func Compression(logger types.Logger, metrics types.MetricsManager) types.MiddlewareFactory {
	return func(options types.Options) (types.Middleware, error) {
		compressionConfig := &CompressionConfig{
			Level:     6,
			Threshold: 1024,
			AllowedTypes: []string{
				"application/json",
				"application/xml",
				"application/javascript",
				"text/",
			},
		}

		if options != nil {
			if err := utils.UnmarshalConfig(map[string]interface{}(options), compressionConfig); err != nil {
				return nil, types.WrapError(err, "compression middleware options")
			}
		}
		if compressionConfig.Level < -1 || compressionConfig.Level > 11 {
			return nil, types.Errorf(types.ErrMiddlewareRegistration, "invalid compression level %d", compressionConfig.Level)
		}

		cm := &CompressionMiddleware{
			logger:            logger,
			metrics:           metrics,
			compressionConfig: compressionConfig,
		}

		level := compressionConfig.Level
		cm.gzipWriterPool = sync.Pool{
			New: func() interface{} {
				w, _ := gzip.NewWriterLevel(nil, clampLevel(level, gzip.BestCompression))
				return w
			},
		}
		cm.deflateWriterPool = sync.Pool{
			New: func() interface{} {
				w, _ := flate.NewWriter(nil, clampLevel(level, flate.BestCompression))
				return w
			},
		}
		cm.brotliWriterPool = sync.Pool{
			New: func() interface{} {
				return brotli.NewWriterLevel(nil, clampLevel(level, brotli.BestCompression))
			},
		}
		cm.bufferPool = sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 4096))
			},
		}

		return cm, nil
	}
}

func clampLevel(level, max int) int {
	if level > max {
		return max
	}
	return level
}

func (c *CompressionMiddleware) Name() string { return "compression" }

func (c *CompressionMiddleware) Dispatch(ctx *types.RequestCtx, next types.Next) error {
	err := next(ctx)
	if err != nil {
		return err
	}

	body := ctx.Response.Body()
	if len(body) < c.compressionConfig.Threshold {
		return nil
	}
	if len(ctx.Response.Header.ContentEncoding()) > 0 {
		return nil
	}
	if !c.typeAllowed(string(ctx.Response.Header.ContentType())) {
		return nil
	}

	algorithm := c.pickAlgorithm(string(ctx.Request.Header.Peek(fasthttp.HeaderAcceptEncoding)))
	if algorithm == "" {
		return nil
	}

	compressed, cerr := c.compress(algorithm, body)
	if cerr != nil {
		c.logger.Warn("Response compression failed", zap.Error(cerr), zap.String("algorithm", algorithm))
		return nil
	}
	if len(compressed) >= len(body) {
		return nil
	}

	ctx.Response.SetBody(compressed)
	ctx.Response.Header.SetContentEncoding(algorithm)
	ctx.Response.Header.Add(fasthttp.HeaderVary, fasthttp.HeaderAcceptEncoding)

	if c.metrics != nil {
		c.metrics.Counter("middleware_compressed_responses_total", map[string]string{
			"algorithm": algorithm,
		}).Inc()
	}

	return nil
}

func (c *CompressionMiddleware) typeAllowed(contentType string) bool {
	for _, allowed := range c.compressionConfig.AllowedTypes {
		if strings.HasPrefix(contentType, allowed) {
			return true
		}
	}
	return false
}

func (c *CompressionMiddleware) pickAlgorithm(acceptEncoding string) string {
	switch {
	case strings.Contains(acceptEncoding, AlgorithmBrotli):
		return AlgorithmBrotli
	case strings.Contains(acceptEncoding, AlgorithmGzip):
		return AlgorithmGzip
	case strings.Contains(acceptEncoding, AlgorithmDeflate):
		return AlgorithmDeflate
	default:
		return ""
	}
}

func (c *CompressionMiddleware) compress(algorithm string, body []byte) ([]byte, error) {
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	var err error
	switch algorithm {
	case AlgorithmBrotli:
		w := c.brotliWriterPool.Get().(*brotli.Writer)
		w.Reset(buf)
		_, err = w.Write(body)
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		c.brotliWriterPool.Put(w)
	case AlgorithmGzip:
		w := c.gzipWriterPool.Get().(*gzip.Writer)
		w.Reset(buf)
		_, err = w.Write(body)
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		c.gzipWriterPool.Put(w)
	case AlgorithmDeflate:
		w := c.deflateWriterPool.Get().(*flate.Writer)
		w.Reset(buf)
		_, err = w.Write(body)
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		c.deflateWriterPool.Put(w)
	}
	if err != nil {
		return nil, err
	}

	compressed := make([]byte, buf.Len())
	copy(compressed, buf.Bytes())
	return compressed, nil
}
