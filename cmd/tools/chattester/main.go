// Command chattester sends utterances to the configured generation service and prints
// the parsed replies, without the realtime host page.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/karen-os/backend/internal/config"
	"github.com/zhouzirui/karen-os/backend/internal/logging"
	"github.com/zhouzirui/karen-os/backend/internal/model/persona"
	"github.com/zhouzirui/karen-os/backend/internal/model/settings"
	"github.com/zhouzirui/karen-os/backend/internal/service/ai"
	"github.com/zhouzirui/karen-os/backend/internal/service/chat"
	"github.com/zhouzirui/karen-os/backend/internal/service/command"
	"github.com/zhouzirui/karen-os/backend/internal/service/conversation"
)

func main() {
	text := flag.String("text", "", "单条话语；留空则从标准输入逐行读取")
	personaID := flag.String("persona", "", "persona ID，默认使用配置中的 PERSONA_ID")
	exportPath := flag.String("export", "", "结束后把对话记录导出到该文件")
	timeout := flag.Duration("timeout", 0, "单次请求超时，默认使用 GENERATION_TIMEOUT")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New(config.LogConfig{})
		fallback.Fatal().Err(err).Msg("配置加载失败")
	}
	log := logging.New(cfg.Log)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("无法加载 .env，改用系统环境变量")
	}

	if *personaID == "" {
		*personaID = cfg.Session.PersonaID
	}
	p, ok := persona.NewMemoryStore(persona.Seed()).FindByID(*personaID)
	if !ok {
		log.Fatal().Str("persona", *personaID).Msg("persona not found")
	}
	if *timeout <= 0 {
		*timeout = cfg.AI.Timeout
	}

	ctx := context.Background()
	generator, provider, err := ai.NewGenerator(ctx, cfg.AI)
	if err != nil {
		log.Fatal().Err(err).Msg("生成服务初始化失败")
	}
	if provider == "" {
		log.Warn().Msg("未配置生成服务凭证，所有回复都将使用兜底消息")
	}

	transcript := chat.NewService(p.ID)
	engine := conversation.NewEngine(transcript, generator, p, nil, *timeout, log)
	router := command.NewRouter()
	s := settings.Defaults()
	s.EnableTTS = false

	handle := func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		if cmd, ok := router.Match(line); ok {
			fmt.Printf("[command] %s\n", cmd)
			if cmd == command.ClearScreen {
				transcript.Clear()
			}
			return
		}

		started := time.Now()
		msg, err := engine.Handle(ctx, line, s)
		if err != nil {
			log.Warn().Err(err).Msg("utterance ignored")
			return
		}
		fmt.Printf("[%s] %s (%s)\n", msg.Emotion, msg.Content, time.Since(started).Round(time.Millisecond))
	}

	if *text != "" {
		handle(*text)
	} else {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			handle(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			log.Error().Err(err).Msg("读取标准输入失败")
		}
	}

	if *exportPath != "" {
		if err := writeExport(transcript, *exportPath); err != nil {
			log.Fatal().Err(err).Msg("导出失败")
		}
		log.Info().Str("file", *exportPath).Int("messages", transcript.Len()).Msg("对话记录已导出")
	}
}

func writeExport(transcript *chat.Service, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := transcript.Export(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
