package admin

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/riftrewind/rewindx/app/admin/controller"
	"github.com/riftrewind/rewindx/app/admin/types"
	"github.com/riftrewind/rewindx/pkg/utils"
)

// NewServer builds the http server for app.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3000")

	app.Server = &http.Server{
		Addr:              addr,
		Handler:           controller.WithCORS(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.Logger.Info("Starting server", zap.String("addr", addr))

	return nil
}
