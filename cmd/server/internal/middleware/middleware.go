package middleware

import (
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/algobattle/algobattle-server/internal/token"
)

const name string = "github.com/algobattle/algobattle-server/cmd/server/middleware"

var tracer = otel.Tracer(name)

type Handler struct {
	DB       *gorm.DB
	TokenKey token.Key
}
