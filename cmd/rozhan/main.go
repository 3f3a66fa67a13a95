package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/agharasoul/Rozhan/adapters/camera"
	"github.com/agharasoul/Rozhan/adapters/capture"
	"github.com/agharasoul/Rozhan/adapters/playback"
	"github.com/agharasoul/Rozhan/domain"
	"github.com/agharasoul/Rozhan/domain/repositories"
	"github.com/agharasoul/Rozhan/internal/api"
	"github.com/agharasoul/Rozhan/internal/auth"
	"github.com/agharasoul/Rozhan/internal/config"
	"github.com/agharasoul/Rozhan/internal/realtime"
	"github.com/agharasoul/Rozhan/usecase"
)

func main() {
	mode := flag.String("mode", "voice", "conversation mode: voice, video, or simple")
	flag.Parse()

	godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	var token *auth.Token
	if cfg.Token != "" {
		t, err := auth.ParseToken(cfg.Token)
		if err != nil {
			logger.Warn("Ignoring malformed bearer token", zap.Error(err))
		} else {
			if t.Expired() {
				logger.Warn("Bearer token is expired; chat requests go unauthenticated")
			}
			token = t
		}
	}

	apiClient := api.NewClient(cfg.APIBase(), token, logger)
	mic := capture.NewManager(logger, nil)
	defer mic.Close()
	player := playback.NewPlayer(logger)
	defer player.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "voice", "video":
		runRealtime(ctx, *mode == "video", cfg, apiClient, mic, player, logger)
	case "simple":
		runSimple(ctx, cfg, apiClient, mic, player, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
}

func runRealtime(
	ctx context.Context,
	video bool,
	cfg config.Config,
	apiClient *api.Client,
	mic repositories.AudioCapture,
	player repositories.AudioPlayer,
	logger *zap.Logger,
) {
	url := cfg.VoiceChatURL()
	if video {
		url = cfg.VideoChatURL()
	}
	channel := realtime.NewChannel(url, logger)

	var cam repositories.VideoCapture
	if video {
		cam = camera.NewManager(logger, map[repositories.CameraFacing]string{
			repositories.FacingFront: cfg.FrontCamera,
			repositories.FacingRear:  cfg.RearCamera,
		})
	}

	svc := usecase.NewConversationService(channel, mic, cam, player, apiClient, usecase.Options{
		Video:             video,
		AutoSpeak:         cfg.AutoSpeak,
		Muted:             cfg.Muted,
		SynthesizeReplies: video,
	}, logger)

	runErr := make(chan error, 1)
	go func() { runErr <- svc.Run(ctx) }()

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderUpdates(svc.Updates())
	}()

	fmt.Println("⏎ گفتگو را شروع/متوقف می‌کند")
	if video {
		fmt.Println("متن تایپ شده ارسال می‌شود، /analyze تحلیل فوری، /quit خروج")
	} else {
		fmt.Println("متن تایپ شده ارسال می‌شود، /quit خروج")
	}

	lines := readLines()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-runErr:
			if err != nil && err != context.Canceled {
				logger.Error("Conversation ended", zap.Error(err))
			}
			<-rendered
			return
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			switch {
			case line == "":
				svc.Toggle()
			case line == "/quit":
				break loop
			case line == "/analyze" && video:
				svc.AnalyzeNow()
			default:
				svc.SendMessage(line, video)
			}
		}
	}

	svc.Close()
	<-runErr
	<-rendered
}

func renderUpdates(updates <-chan usecase.Update) {
	for u := range updates {
		switch u.Kind {
		case usecase.UpdateState:
			fmt.Printf("· %s\n", u.State)
		case usecase.UpdateWelcome:
			fmt.Printf("روژان: %s\n", u.Text)
		case usecase.UpdateTranscript:
			fmt.Printf("شما: %s\n", u.Text)
		case usecase.UpdateReply:
			fmt.Printf("روژان (%s): %s\n", u.Emotion, u.Text)
		case usecase.UpdateNotice:
			fmt.Printf("! %s\n", u.Text)
		case usecase.UpdateSuggestion:
			fmt.Printf("پیشنهاد: %s\n", u.Text)
		case usecase.UpdateLearned:
			fmt.Printf("+ %s\n", strings.Join(u.Facts, "، "))
		case usecase.UpdateAnalysis:
			if u.Analysis != nil {
				fmt.Printf("تحلیل: %s (%s): %s\n",
					u.Analysis.EmotionFa, u.Analysis.Emotion, u.Analysis.FoodSuggestion)
			}
		case usecase.UpdateSummary:
			if u.Summary != nil {
				fmt.Printf("خلاصه جلسه: %d پیام، احساس غالب %s\n",
					u.Summary.MessageCount, u.Summary.DominantEmotion)
			}
		case usecase.UpdateElapsed:
			fmt.Printf("… %ds\n", u.Seconds)
		}
	}
}

func runSimple(
	ctx context.Context,
	cfg config.Config,
	apiClient *api.Client,
	mic repositories.AudioCapture,
	player repositories.AudioPlayer,
	logger *zap.Logger,
) {
	svc := usecase.NewSimpleVoiceService(mic, player, apiClient, apiClient, apiClient, usecase.Options{
		AutoSpeak: cfg.AutoSpeak,
		Muted:     cfg.Muted,
	}, logger)

	type outcome struct {
		turn usecase.SimpleTurn
		err  error
	}

	lines := readLines()
	for {
		fmt.Println("⏎ برای شروع ضبط، /quit برای خروج")
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = l
		}
		if line == "/quit" {
			return
		}

		results := make(chan outcome, 1)
		go func() {
			turn, err := svc.ConverseOnce(ctx)
			results <- outcome{turn: turn, err: err}
		}()

		fmt.Println("در حال ضبط… ⏎ برای پایان")
		for waiting := true; waiting; {
			select {
			case <-ctx.Done():
				svc.StopRecording()
				<-results
				return
			case <-lines:
				svc.StopRecording()
			case res := <-results:
				waiting = false
				if res.err != nil {
					fmt.Printf("! %s\n", domain.AsFault(res.err).Notice())
					continue
				}
				fmt.Printf("شما: %s\n", res.turn.Transcript)
				fmt.Printf("روژان (%s): %s\n", res.turn.Emotion, res.turn.ReplyText)
			}
		}
	}
}

// readLines feeds trimmed stdin lines to the main loop without blocking it.
func readLines() <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()
	return lines
}
