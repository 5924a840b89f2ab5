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

package crontab

import (
	"github.com/caiflower/staticd/global"
	"github.com/caiflower/staticd/pkg/logger"
	"github.com/robfig/cron/v3"
)

const nextTimeFormat = "2006-01-02 15:04:05"

var DefaultCronManger = NewCronTabManger("DefaultCronManger")

type CronManger struct {
	name string
	cron *cron.Cron
}

func NewCronTabManger(name string) *CronManger {
	return &CronManger{name: name, cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger{})))}
}

func (c *CronManger) GetCron() *cron.Cron {
	return c.cron
}
func GetCron() *cron.Cron {
	return DefaultCronManger.GetCron()
}

func (c *CronManger) Start() {
	c.cron.Start()
	global.DefaultResourceManger.Add(c)
}

func Start() {
	DefaultCronManger.Start()
}

// Close stops the scheduler and waits for running jobs.
func (c *CronManger) Close() {
	<-c.cron.Stop().Done()
	logger.Info("[Crontab] %s stopped", c.name)
}
func Close() {
	DefaultCronManger.Close()
}

func (c *CronManger) AddCronJob(spec string, job cron.Job) (cron.EntryID, error) {
	eid, err := c.cron.AddJob(spec, job)
	if err != nil {
		logger.Error("[Crontab] Add crontab failed. spec=%s. err=%v", spec, err)
		return eid, err
	}
	logger.Info("[Crontab] Add crontab. spec=%s. jobId=%v. nextTime=%s", spec, eid, c.cron.Entry(eid).Next.Format(nextTimeFormat))
	return eid, nil
}
func AddCronJob(spec string, job cron.Job) (cron.EntryID, error) {
	return DefaultCronManger.AddCronJob(spec, job)
}

func (c *CronManger) AddFunc(spec string, fn func()) (cron.EntryID, error) {
	return c.AddCronJob(spec, cron.FuncJob(fn))
}

func (c *CronManger) RemoveCronJob(id cron.EntryID) {
	c.cron.Remove(id)
}
func RemoveCronJob(id cron.EntryID) {
	DefaultCronManger.RemoveCronJob(id)
}

// cronLogger routes robfig/cron's own messages into the service log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("[Crontab] %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("[Crontab] %s %v. err=%v", msg, keysAndValues, err)
}
