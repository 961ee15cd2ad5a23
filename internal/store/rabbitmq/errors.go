package rabbitmq

import "errors"

var errEmptyJobID = errors.New("rabbitmq: empty job_id")
