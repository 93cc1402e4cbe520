package docker

import (
	"github.com/docker/docker/api/types/filters"
)

// Docker Compose stamps every container it creates with these labels.
// They are the only state the deploy commands need: a project's
// containers are found by label, never by name.
const (
	// LabelComposeProject holds the compose project name.
	LabelComposeProject = "com.docker.compose.project"

	// LabelComposeService holds the service name from the compose file.
	LabelComposeService = "com.docker.compose.service"

	// LabelComposeOneoff is "True" for `docker compose run` containers.
	LabelComposeOneoff = "com.docker.compose.oneoff"
)

// ProjectFilter builds a Docker API filter matching the containers of
// one compose project. Docker performs the filtering server-side.
func ProjectFilter(project string) filters.Args {
	return filters.NewArgs(filters.Arg("label", LabelComposeProject+"="+project))
}

// IsOneoff reports whether the labels belong to a one-off
// `docker compose run` container rather than a service replica.
func IsOneoff(labels map[string]string) bool {
	return labels[LabelComposeOneoff] == "True"
}
