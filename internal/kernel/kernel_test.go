package kernel

import "testing"

func TestCellIDMapOneEntryPerCell(t *testing.T) {
	m := newCellIDMap()
	m.put("msg-1", "cell-a")
	m.put("msg-2", "cell-a") // re-execution

	if _, ok := m.lookup("msg-1"); ok {
		t.Fatal("expected prior msg_id mapping to be removed on re-execution")
	}
	cellID, ok := m.lookup("msg-2")
	if !ok || cellID != "cell-a" {
		t.Fatalf("expected msg-2 -> cell-a, got %q ok=%v", cellID, ok)
	}
}

func TestCellIDMapIndependentCells(t *testing.T) {
	m := newCellIDMap()
	m.put("msg-1", "cell-a")
	m.put("msg-2", "cell-b")

	if id, ok := m.lookup("msg-1"); !ok || id != "cell-a" {
		t.Fatalf("expected cell-a, got %q ok=%v", id, ok)
	}
	if id, ok := m.lookup("msg-2"); !ok || id != "cell-b" {
		t.Fatalf("expected cell-b, got %q ok=%v", id, ok)
	}
}

func TestDecodeHistoryEntryInputOnly(t *testing.T) {
	entry, ok := decodeHistoryEntry([]byte(`[1, 5, "print(1)"]`))
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if entry.Session != 1 || entry.Line != 5 || entry.Source != "print(1)" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestDecodeHistoryEntryInputOutput(t *testing.T) {
	entry, ok := decodeHistoryEntry([]byte(`[1, 5, ["print(1)", "1"]]`))
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if entry.Source != "print(1)" {
		t.Fatalf("unexpected source: %q", entry.Source)
	}
}

func TestDecodeHistoryEntryMalformed(t *testing.T) {
	if _, ok := decodeHistoryEntry([]byte(`"not a triple"`)); ok {
		t.Fatal("expected malformed entry to be rejected")
	}
}

func TestBuildCommandPooledPython(t *testing.T) {
	cmd, err := buildCommand(KernelTypePython, "/envs/foo/bin/python", nil, "/run/kernel-1.json")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Path != "/envs/foo/bin/python" && cmd.Args[0] != "/envs/foo/bin/python" {
		t.Fatalf("expected pooled interpreter to be the command, got %+v", cmd.Args)
	}
}

func TestBuildCommandKernelspecSubstitutesConnectionFile(t *testing.T) {
	spec := &KernelSpec{Argv: []string{"/usr/bin/ir", "--config", "{connection_file}"}}
	cmd, err := buildCommand(KernelTypeOther, "", spec, "/run/kernel-2.json")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, a := range cmd.Args {
		if a == "/run/kernel-2.json" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected connection file substituted into argv, got %+v", cmd.Args)
	}
}

func TestBuildCommandMissingSpecErrors(t *testing.T) {
	if _, err := buildCommand(KernelTypeOther, "", nil, "/run/k.json"); err == nil {
		t.Fatal("expected error when neither pooled env nor kernelspec is given")
	}
}

func TestChooseWorkDirPrefersNotebookParent(t *testing.T) {
	if got := chooseWorkDir("/home/user/notebooks/x.ipynb"); got != "/home/user/notebooks" {
		t.Fatalf("unexpected work dir: %q", got)
	}
}

func newTestQueueKernel() *RoomKernel {
	return &RoomKernel{
		id:        "test",
		cellMap:   newCellIDMap(),
		events:    make(chan Event, 16),
		queueCmds: make(chan QueueCommand, 1),
	}
}

func TestClearQueueResetsExecutingAndQueue(t *testing.T) {
	k := newTestQueueKernel()
	k.executing = "a"
	k.queue = []string{"b", "c"}

	k.ClearQueue()

	if k.executing != "" {
		t.Fatalf("expected executing cleared, got %q", k.executing)
	}
	if len(k.queue) != 0 {
		t.Fatalf("expected queue cleared, got %+v", k.queue)
	}

	select {
	case ev := <-k.events:
		qc, ok := ev.(QueueChangedEvent)
		if !ok {
			t.Fatalf("expected QueueChangedEvent, got %T", ev)
		}
		if qc.Executing != "" || len(qc.Queue) != 0 {
			t.Fatalf("expected QueueChanged{executing:None, queued:[]}, got %+v", qc)
		}
	default:
		t.Fatal("expected QueueChanged broadcast")
	}
}
