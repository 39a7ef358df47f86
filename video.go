package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"gps_flyover_video/internal/animation"
	"gps_flyover_video/internal/camera"
	"gps_flyover_video/internal/journey"
	"gps_flyover_video/internal/metrics"
	"gps_flyover_video/internal/surface"
)

// --- Structs ---

type Frame struct {
	Number int
	Data   []byte
}

var ErrRunaway = errors.New("animation did not finish")

// engine is one player wired to a simulated clock and a recording surface.
type engine struct {
	clock   *surface.SimClock
	surface *videoSurface
	camera  *camera.Controller
	player  *animation.Player
}

func newEngine(j *journey.Journey, camCfg camera.Config, opts animation.Options, prefetcher surface.Prefetcher, log logrus.FieldLogger) (*engine, error) {
	clock := surface.NewSimClock()
	surf := newVideoSurface(clock.Now)
	env := surface.Env{Surface: surf, Scheduler: clock, Prefetcher: prefetcher, Log: log}

	cam, err := camera.New(env, camCfg)
	if err != nil {
		return nil, err
	}
	player, err := animation.NewPlayer(env, cam, opts)
	if err != nil {
		return nil, err
	}
	if err := player.LoadJourney(j); err != nil {
		return nil, err
	}
	return &engine{clock: clock, surface: surf, camera: cam, player: player}, nil
}

// run starts playback and emits one snapshot per video frame until the
// animation has finished, every timer has fired, the camera has settled
// and tail has passed. emit returning an error stops the run.
func (e *engine) run(framerate float64, tail time.Duration, emit func(frameSnapshot) error) (int, error) {
	dt := time.Duration(float64(time.Second) / framerate)
	limit := e.player.Journey().Duration()*4 + time.Hour

	e.player.Start()
	n := 0
	var doneAt time.Duration
	done := false
	for {
		if err := emit(e.surface.Snapshot(n, e.clock.Now())); err != nil {
			return n, err
		}
		n++

		now := e.clock.Now()
		if !done && e.player.State().Loop == animation.Finished && e.clock.Idle() && e.surface.Settled(now) {
			done = true
			doneAt = now
		}
		if done && now-doneAt >= tail {
			return n, nil
		}
		if now > limit {
			return n, fmt.Errorf("%w after %v", ErrRunaway, now)
		}
		e.clock.Frame(dt)
	}
}

// --- Video Pipeline ---

// collectTiles dry-runs the animation and returns every tile a frame will
// draw. The look-ahead prefetcher warms the cache while it runs.
func collectTiles(j *journey.Journey, camCfg camera.Config, opts animation.Options, prefetcher surface.Prefetcher, framerate float64, tail time.Duration, width, height, tileSize int, log logrus.FieldLogger) (map[Tile]struct{}, int, error) {
	e, err := newEngine(j, camCfg, opts, prefetcher, log)
	if err != nil {
		return nil, 0, err
	}
	tiles := make(map[Tile]struct{})
	frames, err := e.run(framerate, tail, func(s frameSnapshot) error {
		for _, t := range tilesForView(s.Camera.Center, s.Camera.Zoom, s.Camera.Pitch, width, height, tileSize) {
			tiles[t] = struct{}{}
		}
		return nil
	})
	return tiles, frames, err
}

func generateFrames(ctx context.Context, frameChan chan<- Frame, snapshots <-chan frameSnapshot, r *renderer, workers int, log logrus.FieldLogger) {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pngBuffer := new(bytes.Buffer)

			for snap := range snapshots {
				start := time.Now()
				img := r.renderFrame(ctx, snap)

				pngBuffer.Reset()
				if err := png.Encode(pngBuffer, img); err != nil {
					log.WithError(err).WithField("frame", snap.Number).Error("Failed to encode frame")
					continue
				}
				metrics.FrameRenderDuration.Observe(time.Since(start).Seconds())

				frameData := make([]byte, pngBuffer.Len())
				copy(frameData, pngBuffer.Bytes())

				select {
				case frameChan <- Frame{Number: snap.Number, Data: frameData}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	wg.Wait()
}

// writeFrames writes frames to w in order, buffering the ones that arrive
// early. It fails when the next frame takes longer than timeout.
func writeFrames(w io.Writer, frameChan <-chan Frame, totalFrames int, timeout time.Duration, bar *progressbar.ProgressBar) error {
	frameBuffer := make(map[int][]byte)
	nextFrameToWrite := 0
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for nextFrameToWrite < totalFrames {
		select {
		case frame, ok := <-frameChan:
			if !ok {
				return fmt.Errorf("frame channel closed prematurely, last written frame: %d", nextFrameToWrite-1)
			}

			frameBuffer[frame.Number] = frame.Data
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(timeout)

			for {
				data, found := frameBuffer[nextFrameToWrite]
				if !found {
					break
				}
				if _, err := w.Write(data); err != nil {
					return fmt.Errorf("error writing frame %d: %w", nextFrameToWrite, err)
				}
				metrics.FramesRendered.WithLabelValues("video").Inc()
				if bar != nil {
					bar.Add(1)
				}
				delete(frameBuffer, nextFrameToWrite)
				nextFrameToWrite++
			}

		case <-timer.C:
			return fmt.Errorf("stuck waiting for frame %d for over %v", nextFrameToWrite, timeout)
		}
	}
	return nil
}

type videoOptions struct {
	OutputFile string
	Framerate  float64
	Bitrate    string
	Workers    int
	Tail       time.Duration
}

const frameWaitTimeout = 60 * time.Second

func runVideoPipeline(ctx context.Context, newEng func() (*engine, error), totalFrames int, r *renderer, opts videoOptions, log logrus.FieldLogger) error {
	e, err := newEng()
	if err != nil {
		return err
	}

	// --- FFMPEG Setup ---
	ffmpegCmd := exec.CommandContext(ctx, "ffmpeg", "-y", "-f", "image2pipe", "-vcodec", "png", "-r", fmt.Sprintf("%f", opts.Framerate), "-i", "-", "-c:v", "libx264", "-b:v", opts.Bitrate, "-pix_fmt", "yuv420p", "-r", fmt.Sprintf("%f", opts.Framerate), opts.OutputFile)
	ffmpegIn, err := ffmpegCmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get ffmpeg stdin pipe: %w", err)
	}
	ffmpegCmd.Stderr = os.Stderr
	if err := ffmpegCmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// --- Concurrency Setup ---
	snapshots := make(chan frameSnapshot, opts.Workers*2)
	frameChan := make(chan Frame, int(opts.Framerate)*2)

	writeErr := make(chan error, 1)
	go func() {
		defer ffmpegIn.Close()
		bar := progressbar.Default(int64(totalFrames), "Encoding")
		err := writeFrames(ffmpegIn, frameChan, totalFrames, frameWaitTimeout, bar)
		if err != nil {
			cancel()
		}
		writeErr <- err
	}()

	genDone := make(chan struct{})
	go func() {
		generateFrames(ctx, frameChan, snapshots, r, opts.Workers, log)
		close(frameChan)
		close(genDone)
	}()

	// --- Frame Generation ---
	_, runErr := e.run(opts.Framerate, opts.Tail, func(s frameSnapshot) error {
		if s.Number >= totalFrames {
			return io.EOF
		}
		select {
		case snapshots <- s:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	close(snapshots)
	<-genDone

	if err := <-writeErr; err != nil {
		ffmpegCmd.Wait()
		return err
	}
	if runErr != nil && !errors.Is(runErr, io.EOF) {
		ffmpegCmd.Wait()
		return runErr
	}
	if err := ffmpegCmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg command failed: %w", err)
	}
	return nil
}
