package mock

//go:generate minimock -g -i github.com/datavault-ai/entity-backend/pkg/repository.Repository -o ./ -s "_mock.gen.go"
//go:generate minimock -g -i github.com/datavault-ai/entity-backend/pkg/notification.ChangeSink -o ./ -s "_mock.gen.go"
//go:generate minimock -g -i github.com/datavault-ai/entity-backend/pkg/stats.ProjectStatsSink -o ./ -s "_mock.gen.go"
