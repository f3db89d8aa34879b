package util

import "errors"

var (
	ErrEmailRegistered      = errors.New("该邮箱已被注册")
	ErrModuleNotFound       = errors.New("module not found")
	ErrLessonNotFound       = errors.New("lesson not found")
	ErrTemplateNotFound     = errors.New("prompt template not found")
	ErrSlugTaken            = errors.New("slug already taken")
	ErrGenerationInProgress = errors.New("generation already in progress")
	ErrAlreadyCompleted     = errors.New("generation already completed")
	ErrNothingToRetry       = errors.New("no retryable lessons")
	ErrRetryCeiling         = errors.New("retry ceiling reached")
)
