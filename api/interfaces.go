package api

import (
	"github.com/mdblp/interval-sync/usecase"
)

type ExporterUseCase interface {
	Export(args usecase.ExportArgs)
}
