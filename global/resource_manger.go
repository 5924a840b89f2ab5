/*
 * Copyright 2024 caiflower Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package global

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/caiflower/staticd/pkg/logger"
	"github.com/caiflower/staticd/pkg/syncx"
)

// DefaultResourceManger
// 用于守护进程的优雅退出，如HTTP Server、cron

type Resource interface {
	Close()
}

type DaemonResource interface {
	Resource
	Name() string
	Start() error
}

type packageResource struct {
	Resource
	DaemonResource
	order int
}

func (p *packageResource) Name() string {
	if p.DaemonResource != nil {
		return p.DaemonResource.Name()
	}
	return "packageResource"
}

func (p *packageResource) Close() {
	if p.DaemonResource != nil {
		p.DaemonResource.Close()
	} else {
		p.Resource.Close()
	}
}

func (p *packageResource) Start() error {
	if p.DaemonResource != nil {
		return p.DaemonResource.Start()
	}
	return nil
}

type resourceManger struct {
	lock                sync.Locker
	resources           []Resource
	daemons             []DaemonResource
	pagePackageResource []packageResource
	running             bool
	stop                chan struct{}
}

var DefaultResourceManger = NewResourceManger()

func NewResourceManger() *resourceManger {
	return &resourceManger{lock: syncx.NewSpinLock(), stop: make(chan struct{})}
}

func (rm *resourceManger) Add(resource Resource) {
	rm.lock.Lock()
	defer rm.lock.Unlock()

	for _, v := range rm.resources {
		if v == resource {
			return
		}
	}

	rm.resources = append(rm.resources, resource)
	rm.pagePackageResource = append(rm.pagePackageResource, packageResource{Resource: resource, order: 1000000000})
}

func (rm *resourceManger) AddDaemonWithOrder(daemon DaemonResource, order int) {
	rm.lock.Lock()
	defer rm.lock.Unlock()

	for _, v := range rm.daemons {
		if v == daemon {
			return
		}
	}

	rm.daemons = append(rm.daemons, daemon)
	rm.pagePackageResource = append(rm.pagePackageResource, packageResource{DaemonResource: daemon, order: order})
}

func (rm *resourceManger) AddDaemon(daemon DaemonResource) {
	rm.AddDaemonWithOrder(daemon, 100000)
}

// Signal starts every daemon, highest order first, then blocks until a
// termination signal arrives or Shutdown is called and closes everything in
// the same order. A daemon that fails to start aborts the sequence: the ones
// already started are closed and the error is returned.
func (rm *resourceManger) Signal() error {
	rm.lock.Lock()
	if rm.running {
		rm.lock.Unlock()
		return nil
	}
	rm.running = true
	if rm.stop == nil {
		rm.stop = make(chan struct{})
	}

	sort.SliceStable(rm.pagePackageResource, func(i, j int) bool {
		return rm.pagePackageResource[i].order > rm.pagePackageResource[j].order
	})

	for i, resource := range rm.pagePackageResource {
		if err := resource.Start(); err != nil {
			logger.Error("Signal failed. Start '%s' resource failed. Error: %s", resource.Name(), err.Error())
			started := rm.pagePackageResource[:i]
			rm.running = false
			rm.lock.Unlock()
			for _, r := range started {
				r.Close()
			}
			return fmt.Errorf("start %s: %w", resource.Name(), err)
		}
	}

	sign := make(chan os.Signal, 1)
	signal.Notify(sign, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sign)
	stop := rm.stop
	rm.lock.Unlock()

	select {
	case s := <-sign:
		logger.Info("Accept signal %s. The application is shutting down...", s)
	case <-stop:
		logger.Info("Shutdown requested. The application is shutting down...")
	}
	rm.destroy()

	rm.lock.Lock()
	rm.running = false
	rm.stop = nil
	rm.lock.Unlock()
	return nil
}

// Shutdown releases a blocked Signal call, or makes the next one return as soon as its daemons have started.
func (rm *resourceManger) Shutdown() {
	rm.lock.Lock()
	defer rm.lock.Unlock()
	if rm.stop != nil {
		select {
		case <-rm.stop:
		default:
			close(rm.stop)
		}
	}
}

func (rm *resourceManger) destroy() {
	for _, resource := range rm.pagePackageResource {
		resource.Close()
	}
}
