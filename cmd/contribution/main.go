package main

import (
	"log"

	"github.com/ronaldocpontes/contribute/internal/app"
	"github.com/ronaldocpontes/contribute/internal/config"
)

func main() {
	// Загружаем конфигурацию из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.Log()

	// Собираем приложение со всеми зависимостями
	a, err := app.Build(cfg)
	if err != nil {
		log.Fatalf("failed to build app: %v", err)
	}

	// Запускаем и блокируемся до сигнала завершения
	if err := a.Run(); err != nil {
		log.Fatalf("app run error: %v", err)
	}
}
