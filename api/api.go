package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/tidepool-org/go-common/clients/status"

	"github.com/mdblp/interval-sync/common"
	"github.com/mdblp/interval-sync/schema"
	"github.com/mdblp/interval-sync/usecase"
)

type (
	// API struct for interval-sync
	API struct {
		intervalData    usecase.IntervalDataUseCase
		exporter        ExporterUseCase
		databaseAdapter usecase.DatabaseAdapter
		defaultUserID   string
		logger          *log.Logger
		now             func() time.Time
	}
)

const (
	// DataAPIPrefix logging prefix
	DataAPIPrefix = "api/interval "
)

var (
	errorStatusCheck   = common.DetailedError{Status: http.StatusInternalServerError, Code: "data_status_check", Message: "checking of the status endpoint showed an error"}
	errorLoadingEvents = common.DetailedError{Status: http.StatusInternalServerError, Code: "json_marshal_error", Message: "internal server error"}
)

// InitAPI exporter may be nil, the export routes are then not registered.
// defaultUserID is used when a request does not name its user, empty to require it.
func InitAPI(intervalData usecase.IntervalDataUseCase, exporter ExporterUseCase, dbAdapter usecase.DatabaseAdapter, defaultUserID string, logger *log.Logger) *API {
	return &API{
		intervalData:    intervalData,
		exporter:        exporter,
		databaseAdapter: dbAdapter,
		defaultUserID:   defaultUserID,
		logger:          logger,
		now:             time.Now,
	}
}

// SetHandlers set the API routes
func (a *API) SetHandlers(prefix string, rtr *mux.Router) {
	rtr.HandleFunc(prefix+"/api/health", a.getHealth).Methods(http.MethodGet)

	for _, def := range schema.Metrics {
		base := prefix + "/api/" + def.Name
		rtr.HandleFunc(base, a.middleware(a.postIntervals(def))).Methods(http.MethodPost)
		rtr.HandleFunc(base+"/today", a.middleware(a.getToday(def))).Methods(http.MethodGet)
		if a.exporter != nil {
			rtr.HandleFunc(base+"/export/{date}", a.middleware(a.exportDay(def), "date")).Methods(http.MethodGet)
		}
		rtr.HandleFunc(base+"/{date}", a.middleware(a.getByDate(def), "date")).Methods(http.MethodGet)
	}

	rtr.HandleFunc("/status", a.getStatus).Methods(http.MethodGet)
}

// getHealth liveness probe used by the agents to pick an endpoint
func (a *API) getHealth(res http.ResponseWriter, req *http.Request) {
	body, _ := json.Marshal(map[string]string{
		"status":    "OK",
		"timestamp": a.now().UTC().Format(time.RFC3339),
	})
	res.Header().Add("content-type", "application/json")
	res.WriteHeader(http.StatusOK)
	res.Write(body)
}

// @Summary Get the api status
// @Description Get the api status
// @ID interval-sync-api-getstatus
// @Produce json
// @Success 200 {object} status.ApiStatus
// @Failure 500 {object} status.ApiStatus
// @Router /status [get]
func (a *API) getStatus(res http.ResponseWriter, req *http.Request) {
	start := time.Now()
	var s status.ApiStatus
	if err := a.databaseAdapter.Ping(); err != nil {
		errorLog := errorStatusCheck.SetInternalMessage(err)
		a.logError(&errorLog, start)
		s = status.NewApiStatus(errorLog.Status, err.Error())
	} else {
		s = status.NewApiStatus(http.StatusOK, "OK")
	}
	if jsonDetails, err := json.Marshal(s); err != nil {
		a.jsonError(res, errorLoadingEvents.SetInternalMessage(err), start)
	} else {
		res.Header().Add("content-type", "application/json")
		res.WriteHeader(s.Status.Code)
		res.Write(jsonDetails)
	}
}

// log error detail and write as application/json
func (a *API) jsonError(res http.ResponseWriter, err common.DetailedError, startedAt time.Time) {
	a.logError(&err, startedAt)
	jsonErr, _ := json.Marshal(err)

	res.Header().Add("content-type", "application/json")
	res.WriteHeader(err.Status)
	res.Write(jsonErr)
}

func (a *API) logError(err *common.DetailedError, startedAt time.Time) {
	err.ID = uuid.New().String()
	a.logger.Println(DataAPIPrefix, fmt.Sprintf("[%s][%s] failed after [%.3f]secs with error [%s][%s] ", err.ID, err.Code, time.Since(startedAt).Seconds(), err.Message, err.InternalMessage))
}
