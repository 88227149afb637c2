package tasks

import (
	"text2phenotype.com/recognizer/redis"
)

const DocumentsDB redis.DB = 0

type DocumentTask struct {
	FailedTasks  []string            `json:"failed_tasks"`
	FailedChunks map[string][]string `json:"failed_chunks"`
}

// DocumentTaskCached is the subset of a document task mirrored under the
// cached-properties key.
type DocumentTaskCached struct {
	DocInfo     map[string]interface{} `json:"document_info"`
	FailedTasks []string               `json:"failed_tasks"`
	JobID       string                 `json:"job_id"`
	WorkType    string                 `json:"work_type"`
}

type DocumentTasks struct {
	client redis.Client
}

func (tasks DocumentTasks) Get(redisKey string) (*DocumentTask, error) {
	var task DocumentTask
	err := tasks.client.GetDocument(redisKey, &task)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (tasks DocumentTasks) GetCached(redisKey string) (*DocumentTaskCached, error) {
	var task DocumentTaskCached
	err := tasks.client.GetDocument(cachedPropertiesKey(redisKey), &task)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Update changes the document task and refreshes its cached properties while the
// document lock is held.
func (tasks DocumentTasks) Update(redisKey string, updateFunc func(task *DocumentTask)) error {
	var task DocumentTask
	return tasks.client.UpdateDocumentWith(
		redisKey,
		&task,
		func() {
			if task.FailedChunks == nil {
				task.FailedChunks = map[string][]string{}
			}
			updateFunc(&task)
		},
		func(merged []byte) error {
			var cached DocumentTaskCached
			projected, err := redis.Project(merged, &cached)
			if err != nil {
				return err
			}
			return tasks.client.SaveRaw(cachedPropertiesKey(redisKey), projected)
		},
	)
}
