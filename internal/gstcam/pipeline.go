package gstcam

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// pipelineConfig describes the capture pipeline to build.
type pipelineConfig struct {
	Source  string // "v4l2" or "rtsp"
	Device  string
	RTSPURL string
	Width   int
	Height  int
	FPS     int
}

// pipelineElements keeps references needed for teardown.
type pipelineElements struct {
	pipeline *gst.Pipeline
	appsink  *app.Sink
	src      *gst.Element
}

// buildPipeline creates and links the capture pipeline. The pipeline is
// configured but not started; the caller sets it to PLAYING.
//
// v4l2: v4l2src → videoconvert → videoscale → videorate → capsfilter → appsink
// rtsp: rtspsrc → rtph264depay → avdec_h264 → videoconvert → videoscale →
//
//	videorate → capsfilter → appsink
//
// The capsfilter locks the negotiated format to planar I420 at the
// requested size, so the luma plane is always the first width*height
// bytes of every buffer the appsink hands over.
func buildPipeline(cfg pipelineConfig) (*pipelineElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0)

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)     // never duplicate frames
	videorate.SetProperty("skip-to-first", true) // no initial backlog

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildI420Caps(cfg.Width, cfg.Height, cfg.FPS)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // deliver as fast as frames arrive
	appsink.SetProperty("max-buffers", 1) // keep only the latest frame
	appsink.SetProperty("drop", true)
	appsink.SetProperty("qos", true) // let upstream drop before decode

	switch cfg.Source {
	case "v4l2":
		src, err := gst.NewElement("v4l2src")
		if err != nil {
			return nil, fmt.Errorf("failed to create v4l2src: %w", err)
		}
		src.SetProperty("device", cfg.Device)

		pipeline.AddMany(src, converter, scaler, videorate, capsfilter, appsink.Element)
		if err := gst.ElementLinkMany(src, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
			return nil, fmt.Errorf("failed to link v4l2 pipeline elements: %w", err)
		}
		return &pipelineElements{pipeline: pipeline, appsink: appsink, src: src}, nil

	case "rtsp":
		src, err := gst.NewElement("rtspsrc")
		if err != nil {
			return nil, fmt.Errorf("failed to create rtspsrc: %w", err)
		}
		src.SetProperty("location", cfg.RTSPURL)
		src.SetProperty("protocols", 4) // TCP only
		src.SetProperty("latency", 200)
		src.SetProperty("tcp-timeout", uint64(10000000))

		depay, err := gst.NewElement("rtph264depay")
		if err != nil {
			return nil, fmt.Errorf("failed to create rtph264depay: %w", err)
		}
		depay.SetProperty("request-keyframe", true)

		decoder, err := gst.NewElement("avdec_h264")
		if err != nil {
			return nil, fmt.Errorf("failed to create avdec_h264: %w", err)
		}
		decoder.SetProperty("max-threads", 0)
		decoder.SetProperty("output-corrupt", false)

		pipeline.AddMany(src, depay, decoder, converter, scaler, videorate, capsfilter, appsink.Element)
		if err := gst.ElementLinkMany(depay, decoder, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
			return nil, fmt.Errorf("failed to link rtsp pipeline elements: %w", err)
		}

		// rtspsrc pads appear once the stream is negotiated.
		src.Connect("pad-added", func(_ *gst.Element, pad *gst.Pad) {
			onPadAdded(pad, depay)
		})
		return &pipelineElements{pipeline: pipeline, appsink: appsink, src: src}, nil

	default:
		return nil, fmt.Errorf("unknown source %q (must be 'v4l2' or 'rtsp')", cfg.Source)
	}
}

// onPadAdded links a dynamic rtspsrc pad into the depayloader.
func onPadAdded(srcPad *gst.Pad, sinkElement *gst.Element) {
	slog.Debug("gstcam: pad-added signal received", "pad", srcPad.GetName())

	sinkPad := sinkElement.GetStaticPad("sink")
	if sinkPad == nil {
		slog.Error("gstcam: failed to get sink pad from depayloader")
		return
	}
	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		slog.Error("gstcam: failed to link pads",
			"src_pad", srcPad.GetName(),
			"sink_pad", sinkPad.GetName(),
			"ret", ret,
		)
		return
	}
	slog.Debug("gstcam: pads linked", "src_pad", srcPad.GetName())
}

// destroyPipeline sets the pipeline to NULL, releasing the device. Safe
// on an already-dead pipeline.
func destroyPipeline(el *pipelineElements) error {
	if el == nil || el.pipeline == nil {
		return nil
	}
	if err := el.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// buildI420Caps builds the format lock for the appsink branch.
func buildI420Caps(width, height, fps int) string {
	return fmt.Sprintf("video/x-raw,format=I420,width=%d,height=%d,framerate=%d/1",
		width, height, fps)
}

// errorCategory classifies pipeline errors for logs and counters.
type errorCategory int

const (
	// catTransport covers device and connection failures (busy node,
	// unreachable host, timeout)
	catTransport errorCategory = iota
	// catCodec covers decode and negotiation failures
	catCodec
	// catAuth covers authentication failures on the rtsp source
	catAuth
	// catUnknown covers everything else
	catUnknown
)

func (e errorCategory) String() string {
	switch e {
	case catTransport:
		return "transport"
	case catCodec:
		return "codec"
	case catAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Most specific first: auth before codec before transport.
var errorKeywords = []struct {
	cat   errorCategory
	words []string
}{
	{catAuth, []string{"unauthorized", "401", "403", "forbidden", "authentication", "credentials"}},
	{catCodec, []string{"codec", "decode", "format", "negotiat", "caps", "h264", "missing plugin", "no decoder"}},
	{catTransport, []string{"connect", "timeout", "unreachable", "resolve", "socket", "tcp", "rtsp", "device", "busy", "could not open"}},
}

// classifyGstError buckets a pipeline error by message heuristics;
// go-gst's GError exposes no domain, so strings are all there is.
func classifyGstError(gerr *gst.GError) errorCategory {
	if gerr == nil {
		return catUnknown
	}
	return classifyErrorText(gerr.Error() + " " + gerr.DebugString())
}

func classifyErrorText(text string) errorCategory {
	combined := strings.ToLower(text)
	for _, ek := range errorKeywords {
		for _, w := range ek.words {
			if strings.Contains(combined, w) {
				return ek.cat
			}
		}
	}
	return catUnknown
}
