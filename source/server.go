package main

import (
	"context"
	"crm/source/database"
	funnelreferences "crm/source/entities/funnel_references"
	"crm/source/entities/funnels"
	funnelshistory "crm/source/entities/funnels_history"
	"crm/source/entities/kanban"
	"crm/source/middlewares"
	"crm/source/utils"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var inMemory bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Inicia o servidor HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := utils.LoadEnvVariables(!inMemory); err != nil {
			return err
		}

		env := os.Getenv(utils.ENV)
		if env == utils.ENV_RELEASE {
			fmt.Printf("\033[1;31;47m[ATENÇÃO] Rodando em ambiente de PRODUÇÃO!\033[0m\n")
		} else {
			fmt.Printf("[INFO] Ambiente atual: %s\n", env)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var (
			deps    *dependencies
			cleanup func()
			err     error
		)
		if inMemory {
			deps, err = memoryDependencies(ctx)
			cleanup = func() {}
		} else {
			deps, cleanup, err = connectDependencies(ctx)
		}
		if err != nil {
			return err
		}
		defer cleanup()

		return serve(ctx, deps)
	},
}

var ensureIndexesCmd = &cobra.Command{
	Use:   "ensure-indexes",
	Short: "Cria os índices do MongoDB usados pelo kanban",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := utils.LoadEnvVariables(false); err != nil {
			return err
		}
		if os.Getenv(utils.MONGODB_URI) == "" {
			return fmt.Errorf("[ENV] %s é obrigatório", utils.MONGODB_URI)
		}

		ctx := cmd.Context()
		mongoClient, err := database.ConnectMongo(ctx, os.Getenv(utils.MONGODB_URI))
		if err != nil {
			return err
		}
		defer mongoClient.Disconnect(context.Background())

		if err := database.EnsureIndexes(ctx, mongoClient.Database(database.GetDB())); err != nil {
			return err
		}
		log.Printf("[MongoDB] Índices criados no banco %s", database.GetDB())
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&inMemory, "in-memory", false, "Usa armazenamento em memória com dados de demonstração")
}

// dependencies are the stores and collaborators the routes are built from.
type dependencies struct {
	funnels       funnels.Store
	references    funnelreferences.Store
	history       funnelshistory.Store
	opportunities kanbanOpportunities
	scopes        kanban.ScopeResolver
	pageCache     *kanban.PageCache
	publisher     funnelreferences.Notifier
	auth          func(http.Handler) http.Handler
}

// kanbanOpportunities is read by the kanban and labels funnel events.
type kanbanOpportunities interface {
	kanban.OpportunityReader
	funnelreferences.OpportunityLabeler
}

func connectDependencies(ctx context.Context) (*dependencies, func(), error) {
	mongoClient, err := database.ConnectMongo(ctx, os.Getenv(utils.MONGODB_URI))
	if err != nil {
		return nil, nil, err
	}
	db := mongoClient.Database(database.GetDB())

	mysqlDB, err := database.OpenMySQL(os.Getenv(utils.MYSQL_URI))
	if err != nil {
		mongoClient.Disconnect(context.Background())
		return nil, nil, err
	}

	rdb, err := database.OpenRedis(ctx, os.Getenv(utils.REDIS_URI))
	if err != nil {
		mysqlDB.Close()
		mongoClient.Disconnect(context.Background())
		return nil, nil, err
	}

	ttl := time.Duration(utils.GetEnvInt(utils.KANBAN_CACHE_TTL_SECONDS, 300)) * time.Second

	deps := &dependencies{
		funnels:       funnels.NewMongoStore(db),
		references:    funnelreferences.NewMongoStore(db),
		history:       funnelshistory.NewMongoStore(db),
		opportunities: kanban.NewMongoOpportunities(db),
		scopes:        kanban.NewMySQLScopeResolver(mysqlDB),
		pageCache:     kanban.NewPageCache(rdb, ttl),
		publisher:     funnelreferences.NewRedisPublisher(rdb),
		auth:          middlewares.LaravelAuth,
	}

	cleanup := func() {
		rdb.Close()
		mysqlDB.Close()
		mongoClient.Disconnect(context.Background())
	}
	return deps, cleanup, nil
}

func memoryDependencies(ctx context.Context) (*dependencies, error) {
	deps := &dependencies{
		funnels:       funnels.NewMemoryStore(),
		references:    funnelreferences.NewMemoryStore(),
		history:       funnelshistory.NewMemoryStore(),
		opportunities: kanban.NewMemoryOpportunities(),
		scopes:        kanban.Unrestricted,
		auth:          middlewares.StaticAuth(middlewares.LaravelUser{ID: 1, Name: "Demo"}),
	}
	if err := seedDemo(ctx, deps); err != nil {
		return nil, fmt.Errorf("[Demo] %w", err)
	}
	return deps, nil
}

// transitionNotifiers runs in order: the page cache is invalidated before
// any listener is told about the move, so a refetch never reads the old page.
func transitionNotifiers(deps *dependencies, hub *funnelreferences.Hub) funnelreferences.Notifiers {
	notifiers := funnelreferences.Notifiers{funnelshistory.NewRecorder(deps.history)}
	if deps.pageCache != nil {
		notifiers = append(notifiers, deps.pageCache)
	}
	notifiers = append(notifiers, hub)
	if deps.publisher != nil {
		notifiers = append(notifiers, deps.publisher)
	}
	return notifiers
}

func routes(deps *dependencies) (http.Handler, *funnelreferences.Hub) {
	hub := funnelreferences.NewHub()

	transitions := funnelreferences.NewService(deps.references,
		funnelreferences.WithFunnels(deps.funnels),
		funnelreferences.WithLabeler(deps.opportunities),
		funnelreferences.WithNotifier(transitionNotifiers(deps, hub)),
	)

	kanbanOpts := []kanban.Option{kanban.WithScopes(deps.scopes)}
	if deps.pageCache != nil {
		kanbanOpts = append(kanbanOpts, kanban.WithPageCache(deps.pageCache))
	}
	board := kanban.NewService(deps.references, deps.opportunities, kanban.Config{
		DefaultPageSize:  utils.GetEnvInt(utils.KANBAN_PAGE_SIZE, kanban.DEFAULT_PAGE_SIZE),
		MaxBatchRequests: utils.GetEnvInt(utils.BATCH_MAX_REQUESTS, kanban.DEFAULT_BATCH_MAX_REQUESTS),
		BatchConcurrency: utils.GetEnvInt(utils.BATCH_CONCURRENCY, 0),
	}, kanbanOpts...)

	funnelsHandler := funnels.NewHandler(deps.funnels)
	referencesHandler := funnelreferences.NewHandler(transitions)
	historyHandler := funnelshistory.NewHandler(deps.history)
	kanbanHandler := kanban.NewHandler(board)
	auth := deps.auth

	mux := http.NewServeMux()

	mux.Handle("GET /v1/funnels", auth(http.HandlerFunc(funnelsHandler.GetAll)))
	mux.Handle("GET /v1/funnels/{id}", auth(http.HandlerFunc(funnelsHandler.GetOne)))
	mux.Handle("POST /v1/funnels", auth(http.HandlerFunc(funnelsHandler.CreateOne)))

	mux.Handle("POST /v1/funnel-references", auth(http.HandlerFunc(referencesHandler.CreateOne)))
	mux.Handle("GET /v1/funnel-references/{id}", auth(http.HandlerFunc(referencesHandler.GetOne)))
	mux.Handle("PATCH /v1/funnel-references/{id}/stage", auth(http.HandlerFunc(referencesHandler.MoveToStage)))
	mux.Handle("GET /v1/funnel-references/{id}/history", auth(http.HandlerFunc(historyHandler.GetAll)))
	mux.Handle("DELETE /v1/opportunities/{id}/funnel-references", auth(http.HandlerFunc(referencesHandler.DeleteByOpportunity)))

	mux.Handle("POST /v1/kanban/stage", auth(http.HandlerFunc(kanbanHandler.GetStagePage)))
	mux.Handle("POST /v1/kanban/batch", auth(http.HandlerFunc(kanbanHandler.GetBatch)))

	mux.Handle("/v1/ws/funnels", hub)

	return middlewares.RequestID(middlewares.SecurityHeaders(middlewares.Cors(mux))), hub
}

func serve(ctx context.Context, deps *dependencies) error {
	handler, _ := routes(deps)

	port := os.Getenv(utils.PORT)
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		fmt.Printf("Servidor iniciado na porta %s às %s\n", port, time.Now().Format("2006-01-02 15:04:05"))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("[HTTP] Encerrando servidor")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
