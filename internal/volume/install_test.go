package volume_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/UpCloudLtd/recovery-volumes/internal/filesystem"
	fsmock "github.com/UpCloudLtd/recovery-volumes/internal/filesystem/mock"
	"github.com/UpCloudLtd/recovery-volumes/internal/fstab"
	"github.com/UpCloudLtd/recovery-volumes/internal/volume"
)

func mountedAt(mountPoints ...string) []filesystem.MountedVolume {
	r := make([]filesystem.MountedVolume, 0, len(mountPoints))
	for _, mp := range mountPoints {
		r = append(r, filesystem.MountedVolume{Device: "/dev/block" + mp, MountPoint: mp, FSType: "ext4"})
	}
	return r
}

func mountTargets(calls []fsmock.MountCall) []string {
	r := make([]string, 0, len(calls))
	for _, c := range calls {
		r = append(r, c.Target)
	}
	return r
}

var _ = Describe("SetupInstallMounts", func() {
	var (
		ctx      context.Context
		env      *testEnv
		observer *recordingObserver
	)

	BeforeEach(func() {
		ctx = context.Background()
		observer = &recordingObserver{}
	})

	Context("with the default policy", func() {
		BeforeEach(func() {
			env = newTestEnv(GinkgoT(), fstab.StaticSource{
				{MountPoint: "/", FSType: "ext4", BlockDevice: "/dev/block/system"},
				{MountPoint: "/cache", FSType: "ext4", BlockDevice: "/dev/block/cache"},
				{MountPoint: "/data", FSType: "ext4", BlockDevice: "/dev/block/data"},
				{MountPoint: "/vendor", FSType: "ext4", BlockDevice: "/dev/block/vendor"},
				{MountPoint: "/misc", FSType: "emmc", BlockDevice: "/dev/block/misc"},
			}, volume.WithObserver(observer))
			env.fs.Mounted = mountedAt("/", "/data", "/vendor")
		})

		It("mounts staging volumes and releases everything else", func() {
			Expect(env.manager.SetupInstallMounts(ctx)).To(Succeed())

			Expect(mountTargets(env.fs.MountCalls)).To(Equal([]string{"/cache"}))
			Expect(env.fs.UnmountCalls).To(Equal([]fsmock.UnmountCall{
				{Target: "/data", Detach: true},
				{Target: "/vendor", Detach: false},
			}))
			Expect(filesystem.FindMountedVolume(env.fs.Mounted, "/")).NotTo(BeNil())
		})

		It("is idempotent", func() {
			Expect(env.manager.SetupInstallMounts(ctx)).To(Succeed())
			Expect(env.manager.SetupInstallMounts(ctx)).To(Succeed())

			Expect(env.fs.MountCalls).To(HaveLen(1))
			Expect(env.fs.UnmountCalls).To(HaveLen(2))
		})

		It("reports the run to the observer", func() {
			Expect(env.manager.SetupInstallMounts(ctx)).To(Succeed())
			Expect(observer.operations).To(HaveLen(6))
			Expect(observer.operations[len(observer.operations)-1]).To(Equal(volume.OperationSetupInstallMounts))
			Expect(observer.failures).To(BeZero())
		})

		It("stops when a staging volume can't be mounted", func() {
			env.fs.MountErr["/cache"] = errors.New("invalid argument")

			err := env.manager.SetupInstallMounts(ctx)
			Expect(err).To(MatchError(ContainSubstring("/cache")))
			Expect(env.fs.UnmountCalls).To(BeEmpty())
			Expect(observer.failures).To(Equal(2))
		})
	})

	Context("when an unmount fails midway", func() {
		var errBusy error

		BeforeEach(func() {
			errBusy = errors.New("device or resource busy")
			env = newTestEnv(GinkgoT(), fstab.StaticSource{
				{MountPoint: "/", FSType: "ext4", BlockDevice: "/dev/block/system"},
				{MountPoint: "/a", FSType: "ext4", BlockDevice: "/dev/block/a"},
				{MountPoint: "/b", FSType: "ext4", BlockDevice: "/dev/block/b"},
				{MountPoint: "/c", FSType: "ext4", BlockDevice: "/dev/block/c"},
				{MountPoint: "/d", FSType: "ext4", BlockDevice: "/dev/block/d"},
				{MountPoint: "/e", FSType: "ext4", BlockDevice: "/dev/block/e"},
			})
			env.fs.Mounted = mountedAt("/a", "/b", "/c", "/d", "/e")
			env.fs.UnmountErr["/c"] = errBusy
		})

		It("leaves the remaining volumes untouched", func() {
			err := env.manager.SetupInstallMounts(ctx)
			Expect(err).To(MatchError(errBusy))

			Expect(env.fs.UnmountCalls).To(Equal([]fsmock.UnmountCall{
				{Target: "/a"}, {Target: "/b"}, {Target: "/c"},
			}))
			for _, mp := range []string{"/c", "/d", "/e"} {
				Expect(filesystem.FindMountedVolume(env.fs.Mounted, mp)).NotTo(BeNil(), mp)
			}
		})
	})

	Context("with a custom policy", func() {
		BeforeEach(func() {
			env = newTestEnv(GinkgoT(), fstab.StaticSource{
				{MountPoint: "/system", FSType: "ext4", BlockDevice: "/dev/block/system"},
				{MountPoint: "/cache", FSType: "ext4", BlockDevice: "/dev/block/cache"},
				{MountPoint: "/metadata", FSType: "ext4", BlockDevice: "/dev/block/metadata"},
			}, volume.WithInstallPolicy(volume.InstallPolicy{
				Skip:   []string{"/system"},
				Mount:  []string{"/metadata"},
				Detach: []string{"/cache"},
			}))
			env.fs.Mounted = mountedAt("/system", "/cache")
		})

		It("follows the configured policy", func() {
			Expect(env.manager.SetupInstallMounts(ctx)).To(Succeed())
			Expect(mountTargets(env.fs.MountCalls)).To(Equal([]string{"/metadata"}))
			Expect(env.fs.UnmountCalls).To(Equal([]fsmock.UnmountCall{{Target: "/cache", Detach: true}}))
		})
	})

	It("fails without a volume table", func() {
		m := volume.NewManager(nil, fsmock.NewFilesystem(testLogger()), nil, testLogger().WithField("package", "volume_test"))
		Expect(m.SetupInstallMounts(ctx)).To(MatchError(volume.ErrNoVolumeTable))
		Expect(m.VolumeForPath(ctx, "/cache")).To(BeNil())
		Expect(m.NumVolumes()).To(BeZero())
	})
})
