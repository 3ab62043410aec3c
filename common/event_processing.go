package common

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/apex/log"
)

// ErrTaskQueueFull the processor's task buffer has no room left
var ErrTaskQueueFull = errors.New("task queue full")

// TaskHandler a handler function which execute a task based on parameters
type TaskHandler func(ctxt context.Context, taskParam interface{}) error

// TaskProcessor processing module for implementing an event loop model
type TaskProcessor interface {
	// Submit queue a new task parameter without blocking.
	//
	// Returns ErrTaskQueueFull when the buffer has no room.
	Submit(newTaskParam interface{}) error
	// ProcessNewTaskParam run the handler matching the task parameter's type
	ProcessNewTaskParam(ctxt context.Context, newTaskParam interface{}) error
	// SetTaskExecutionMap replace the task param to execution mapping
	SetTaskExecutionMap(newMap map[reflect.Type]TaskHandler) error
	// AddToTaskExecutionMap add one entry to the task param to execution mapping
	AddToTaskExecutionMap(theType reflect.Type, handler TaskHandler) error
	// StartEventLoop start the event loop. It runs until the context is cancelled.
	StartEventLoop(ctxt context.Context, wg *sync.WaitGroup) error
}

// taskProcessorImpl implement TaskProcessor
type taskProcessorImpl struct {
	Component
	name         string
	newTasks     chan interface{}
	lock         sync.RWMutex
	executionMap map[reflect.Type]TaskHandler
	running      bool
}

// GetNewTaskProcessorInstance get instance of TaskProcessor
func GetNewTaskProcessorInstance(name string, taskBuffer int) (TaskProcessor, error) {
	if taskBuffer < 1 {
		return nil, fmt.Errorf("[TP %s] task buffer must hold at least one task", name)
	}
	logTags := log.Fields{
		"module": "common", "component": fmt.Sprintf("task-processor/%s", name),
	}
	return &taskProcessorImpl{
		Component:    Component{LogTags: logTags},
		name:         name,
		newTasks:     make(chan interface{}, taskBuffer),
		executionMap: make(map[reflect.Type]TaskHandler),
	}, nil
}

// Submit queue a new task parameter for processing
func (p *taskProcessorImpl) Submit(newTaskParam interface{}) error {
	select {
	case p.newTasks <- newTaskParam:
		return nil
	default:
		return fmt.Errorf("[TP %s] %w", p.name, ErrTaskQueueFull)
	}
}

// SetTaskExecutionMap update the task param to execution mapping
func (p *taskProcessorImpl) SetTaskExecutionMap(newMap map[reflect.Type]TaskHandler) error {
	log.WithFields(p.LogTags).Debug("Changing task execution mapping")
	p.lock.Lock()
	defer p.lock.Unlock()
	p.executionMap = newMap
	return nil
}

// AddToTaskExecutionMap add a new entry to the task param to execution mapping
func (p *taskProcessorImpl) AddToTaskExecutionMap(theType reflect.Type, handler TaskHandler) error {
	log.WithFields(p.LogTags).Debugf("Appending to task execution mapping for %s", theType)
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.executionMap == nil {
		p.executionMap = make(map[reflect.Type]TaskHandler)
	}
	p.executionMap[theType] = handler
	return nil
}

// ProcessNewTaskParam process a new task param
func (p *taskProcessorImpl) ProcessNewTaskParam(ctxt context.Context, newTaskParam interface{}) error {
	p.lock.RLock()
	theHandler, ok := p.executionMap[reflect.TypeOf(newTaskParam)]
	mapped := len(p.executionMap) > 0
	p.lock.RUnlock()
	if !mapped {
		return fmt.Errorf("[TP %s] No task execution mapping set", p.name)
	}
	if !ok {
		return fmt.Errorf(
			"[TP %s] No matching handler found for %s", p.name, reflect.TypeOf(newTaskParam),
		)
	}
	return theHandler(ctxt, newTaskParam)
}

// StartEventLoop start the event loop
func (p *taskProcessorImpl) StartEventLoop(ctxt context.Context, wg *sync.WaitGroup) error {
	p.lock.Lock()
	if p.running {
		p.lock.Unlock()
		return fmt.Errorf("[TP %s] event loop already running", p.name)
	}
	p.running = true
	p.lock.Unlock()

	log.WithFields(p.LogTags).Info("Starting event loop")
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer log.WithFields(p.LogTags).Info("Event loop exiting")
		for {
			select {
			case <-ctxt.Done():
				return
			case newTaskParam := <-p.newTasks:
				if err := p.ProcessNewTaskParam(ctxt, newTaskParam); err != nil {
					log.WithError(err).WithFields(p.LogTags).Error("Failed to process new task param")
				}
			}
		}
	}()
	return nil
}
