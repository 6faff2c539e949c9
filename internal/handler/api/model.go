package api

import (
	"SpotAgent/internal/usecase"
	xhttp "SpotAgent/pkg/http"
)

func init() {
	_ = xhttp.RegisterValidation("operator_command", func(s string) bool {
		_, err := usecase.ParseCommand(s)
		return err == nil
	})
}

type CommandRequest struct {
	Command string `json:"command" validate:"required,max=32,operator_command"`
}
