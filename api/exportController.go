package api

import (
	"context"
	"net/http"

	"github.com/mdblp/interval-sync/common"
	"github.com/mdblp/interval-sync/schema"
	"github.com/mdblp/interval-sync/usecase"
)

var errorInvalidFormat = common.DetailedError{Status: http.StatusBadRequest, Code: "invalid_format", Message: "format must be json or csv"}

// exportDay
// @Summary Export a day of a metric to a S3 file.
// @Description Export the intervals of a day to a file stored on S3.
// This operation is asynchronous and always returning 202 when the parameters are valid.
// @ID interval-sync-export
// @Produce json
// @Success 202
// @Failure 400 {object} common.DetailedError
// @Param date path string true "YYYY-MM-DD"
// @Param userId query string false "The user, the service default user when omitted"
// @Param format query string false "json (default) or csv"
// @Router /api/{metric}/export/{date} [get]
func (a *API) exportDay(def schema.MetricDefinition) HandlerLoggerFunc {
	return func(ctx context.Context, res *common.HttpResponseWriter) error {
		date := res.VARS["date"]
		if _, err := schema.ParseDay(date); err != nil {
			detailedErr := common.ErrorInvalidDate.SetInternalMessage(err)
			return res.WriteError(&detailedErr)
		}
		userID, detailedErr := a.userID(res.Query("userId"))
		if detailedErr != nil {
			return res.WriteError(detailedErr)
		}
		format := res.Query("format")
		switch format {
		case "":
			format = usecase.ExportJSON
		case usecase.ExportJSON, usecase.ExportCSV:
		default:
			invalidFormat := errorInvalidFormat
			return res.WriteError(&invalidFormat)
		}

		go a.exporter.Export(usecase.ExportArgs{
			Metric:  def,
			UserID:  userID,
			TraceID: res.TraceID,
			Date:    date,
			Format:  format,
		})
		return res.WriteJSON(http.StatusAccepted, map[string]interface{}{
			"success": true,
			"message": "export of " + def.Label + " data for " + date + " started",
		})
	}
}
