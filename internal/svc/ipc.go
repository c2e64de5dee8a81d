package svc

import (
	"errors"
	"time"

	"github.com/rost-kernel/rost/internal/ipc"
	"github.com/rost-kernel/rost/internal/proc"
)

func (k *Kernel) shmTable(pid proc.PID) (*ipc.Table, error) {
	var table *ipc.Table

	err := k.Processes.WithProcess(pid, func(p *proc.Process) error {
		table = p.Shm

		return nil
	})

	return table, err
}

func (k *Kernel) sysShmCreate(pid proc.PID, args [7]uint64) int64 {
	sizeBytes := uint32(args[0])

	table, err := k.shmTable(pid)
	if err != nil {
		return int64(InvalidArgument)
	}

	id, err := k.Shm.Create(table, uint32(pid), sizeBytes)
	if err != nil {
		return int64(OutOfMemory)
	}

	return int64(id)
}

func (k *Kernel) sysShmMap(pid proc.PID, args [7]uint64) int64 {
	id := int32(args[0])

	table, err := k.shmTable(pid)
	if err != nil {
		return int64(InvalidArgument)
	}

	virt, err := k.Shm.Map(table, id)
	if err != nil {
		return int64(InvalidArgument)
	}

	return int64(virt)
}

func (k *Kernel) sysShmMapFromProcess(pid proc.PID, args [7]uint64) int64 {
	id := int32(args[0])

	table, err := k.shmTable(pid)
	if err != nil {
		return int64(InvalidArgument)
	}

	virt, err := k.Shm.MapFromProcess(table, id, k.Processes)
	if err != nil {
		if errors.Is(err, ipc.ErrNotFound) {
			return int64(FileNotFound)
		}

		return int64(OutOfMemory)
	}

	return int64(virt)
}

func (k *Kernel) sysShmUnmap(pid proc.PID, args [7]uint64) int64 {
	id := int32(args[0])

	table, err := k.shmTable(pid)
	if err != nil {
		return int64(InvalidArgument)
	}

	if err := k.Shm.Unmap(table, id); err != nil {
		return int64(InvalidArgument)
	}

	return int64(Success)
}

func (k *Kernel) sysShmDestroy(pid proc.PID, args [7]uint64) int64 {
	id := int32(args[0])

	table, err := k.shmTable(pid)
	if err != nil {
		return int64(InvalidArgument)
	}

	if err := k.Shm.Destroy(table, id); err != nil {
		return int64(InvalidArgument)
	}

	return int64(Success)
}

func (k *Kernel) sysSendMessage(pid proc.PID, args [7]uint64) int64 {
	destPID := proc.PID(args[0])
	bufPtr, length := args[1], args[2]

	if length > ipc.MaxPayload {
		return int64(InvalidArgument)
	}

	payload := make([]byte, length)
	if _, err := k.Memory.ReadAt(bufPtr, payload); err != nil {
		return int64(InvalidArgument)
	}

	dest, err := k.Processes.Get(destPID)
	if err != nil {
		return int64(InvalidArgument)
	}

	if err := dest.Messages.Send(uint32(pid), payload); err != nil {
		if errors.Is(err, ipc.ErrQueueFull) {
			return int64(QueueFull)
		}

		return int64(InvalidArgument)
	}

	return int64(Success)
}

func (k *Kernel) sysRecvMessage(pid proc.PID, args [7]uint64) int64 {
	bufPtr, timeoutMillis := args[0], args[1]

	self, err := k.Processes.Get(pid)
	if err != nil {
		return int64(InvalidArgument)
	}

	msg, ok := self.Messages.Recv(time.Duration(timeoutMillis) * time.Millisecond)
	if !ok {
		return -1
	}

	if _, err := k.Memory.WriteAt(bufPtr, msg.Data[:msg.DataLen]); err != nil {
		return int64(InvalidArgument)
	}

	return int64(msg.DataLen)
}
