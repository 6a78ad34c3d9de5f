package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-chat/core"
	"github.com/trezcool/masomo-chat/core/device"
	logsvc "github.com/trezcool/masomo-chat/services/logger"
	"github.com/trezcool/masomo-chat/storage/database"
	sqlxrepos "github.com/trezcool/masomo-chat/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.New("ADMIN", conf)

	if conf.IsInMemory() {
		logger.Fatal("the admin CLI cannot work on the in-memory database")
	}

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	validate := validator.New()
	cli := commandLine{
		db:        db.DB,
		deviceSvc: device.NewService(sqlxrepos.NewDeviceTokenRepository(db), validate, logger),
	}

	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
