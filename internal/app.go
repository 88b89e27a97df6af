package internal

import (
	"gorm.io/gorm"

	"github.com/prism/prism/internal/activitylog"
	activityrepo "github.com/prism/prism/internal/activitylog/repositoryimpl"
	"github.com/prism/prism/internal/agent"
	agentrepo "github.com/prism/prism/internal/agent/repositoryimpl"
	"github.com/prism/prism/internal/agentrpc"
	"github.com/prism/prism/internal/config"
	"github.com/prism/prism/internal/dispatch"
	"github.com/prism/prism/internal/ingestion"
	"github.com/prism/prism/internal/notifier"
	"github.com/prism/prism/internal/orchestrator"
	"github.com/prism/prism/internal/project"
	projectrepo "github.com/prism/prism/internal/project/repositoryimpl"
	"github.com/prism/prism/internal/pushnotification"
	"github.com/prism/prism/internal/pushsubscription"
	pushrepo "github.com/prism/prism/internal/pushsubscription/repositoryimpl"
	"github.com/prism/prism/internal/task"
	taskrepo "github.com/prism/prism/internal/task/repositoryimpl"
	"github.com/prism/prism/internal/taskstore"
	"github.com/prism/prism/pkg/keylock"
	"github.com/prism/prism/pkg/storage"
)

type Stores struct {
	Tasks             task.Repository
	Activities        activitylog.Repository
	Projects          project.Repository
	Agents            agent.Repository
	PushSubscriptions pushsubscription.Repository
	Recorder          taskstore.Recorder
}

// NewYAMLStores keeps everything as documents in s.
func NewYAMLStores(s storage.Storage) *Stores {
	tasks := taskrepo.NewYAMLRepository(s)
	activities := activityrepo.NewYAMLRepository(s)
	return &Stores{
		Tasks:             tasks,
		Activities:        activities,
		Projects:          projectrepo.NewYAMLRepository(s),
		Agents:            agentrepo.NewYAMLRepository(s),
		PushSubscriptions: pushrepo.NewYAMLRepository(s),
		Recorder:          taskstore.NewSequentialRecorder(tasks, activities),
	}
}

// NewGormStores keeps tasks, audit entries and the catalog in db. Push
// subscriptions stay in s.
func NewGormStores(db *gorm.DB, s storage.Storage) *Stores {
	return &Stores{
		Tasks:             taskrepo.NewGormRepository(db),
		Activities:        activityrepo.NewGormRepository(db),
		Projects:          projectrepo.NewGormRepository(db),
		Agents:            agentrepo.NewGormRepository(db),
		PushSubscriptions: pushrepo.NewYAMLRepository(s),
		Recorder:          taskstore.NewGormRecorder(db),
	}
}

// App is the wired server and its background workers.
type App struct {
	Server       *Server
	Dispatcher   *pushnotification.Dispatcher
	Orchestrator *orchestrator.Orchestrator
	Ingestion    *ingestion.Service
	Hub          *notifier.Hub
	Registry     *dispatch.Registry
}

func NewApp(env *config.Env, stores *Stores) *App {
	hub := notifier.New()
	registry := dispatch.NewRegistry(env.DispatchBuffer)
	locks := keylock.New()

	ingest := ingestion.NewService(stores.Tasks, stores.Recorder, hub, locks)
	orch := orchestrator.New(orchestrator.Deps{
		Tasks:      stores.Tasks,
		Projects:   stores.Projects,
		Agents:     stores.Agents,
		Activities: stores.Activities,
		Recorder:   stores.Recorder,
		Hub:        hub,
		Registry:   registry,
		Locks:      locks,
	})

	vapid := config.VAPIDEnvFromEnv(env)
	sender := pushnotification.NewSender(vapid, stores.PushSubscriptions)

	return &App{
		Server: NewServer(
			env,
			task.NewServer(stores.Tasks),
			orchestrator.NewServer(orch),
			activitylog.NewServer(stores.Activities),
			project.NewServer(stores.Projects),
			agent.NewServer(stores.Agents),
			pushnotification.NewServer(vapid, stores.PushSubscriptions, sender),
			agentrpc.NewServer(registry, ingest),
			notifier.NewWebSocketHandler(hub, env.SubscriberBuffer),
		),
		Dispatcher:   pushnotification.NewDispatcher(hub, stores.Tasks, sender, env.SubscriberBuffer),
		Orchestrator: orch,
		Ingestion:    ingest,
		Hub:          hub,
		Registry:     registry,
	}
}
